package survey

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/motorline/drive-survey/model"
)

func TestStartIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, v := createDraftSurvey(t, db, "velora")
	insertForm(t, db, "form-1", "velora")

	first, err := Start(ctx, db, v.ID, "form-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.Status != model.ResponseStarted || first.SubmittedAt != nil {
		t.Fatalf("unexpected new response state: %+v", first)
	}

	second, err := Start(ctx, db, v.ID, "form-1")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same response, got %s and %s", first.ID, second.ID)
	}

	n := countRows(t, db, `SELECT COUNT(*) FROM survey_response WHERE version_id = ? AND form_id = ?`, v.ID, "form-1")
	if n != 1 {
		t.Fatalf("expected exactly one response row, got %d", n)
	}
}

func TestStartNotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, v := createDraftSurvey(t, db, "velora")
	insertForm(t, db, "form-1", "velora")

	var nferr *NotFoundError
	if _, err := Start(ctx, db, "missing-version", "form-1"); !errors.As(err, &nferr) {
		t.Fatalf("expected NotFoundError for version, got %v", err)
	}
	if _, err := Start(ctx, db, v.ID, "missing-form"); !errors.As(err, &nferr) {
		t.Fatalf("expected NotFoundError for form, got %v", err)
	}
}

func TestEnsureCreatedFlag(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s, v := createDraftSurvey(t, db, "velora")
	markReady(t, db, s.ID)
	insertForm(t, db, "form-1", "velora")

	r1, created, err := Ensure(ctx, db, "form-1", "velora")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !created {
		t.Fatalf("expected first ensure to create")
	}
	if r1.VersionID != v.ID {
		t.Fatalf("expected response on current version %s, got %s", v.ID, r1.VersionID)
	}

	r2, created, err := Ensure(ctx, db, "form-1", "velora")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if created {
		t.Fatalf("expected second ensure to reuse the existing response")
	}
	if r2.ID != r1.ID {
		t.Fatalf("expected the same response, got %s and %s", r1.ID, r2.ID)
	}
}

func TestEnsureConcurrent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s, v := createDraftSurvey(t, db, "velora")
	markReady(t, db, s.ID)
	insertForm(t, db, "form-1", "velora")

	const callers = 8
	var wg sync.WaitGroup
	createdCount := make(chan bool, callers)
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := Ensure(ctx, db, "form-1", "velora")
			if err != nil {
				errs <- err
				return
			}
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent ensure failed: %v", err)
	}

	created := 0
	for c := range createdCount {
		if c {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one creator, got %d", created)
	}

	n := countRows(t, db, `SELECT COUNT(*) FROM survey_response WHERE version_id = ? AND form_id = ?`, v.ID, "form-1")
	if n != 1 {
		t.Fatalf("expected exactly one persisted response, got %d", n)
	}
}

func TestEnsureMisconfigurationIsNonFatal(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	insertForm(t, db, "form-1", "velora")

	// no survey configured for the brand at all
	outcome, err := EnsureResponseForForm(ctx, db, "form-1", "velora")
	if err != nil {
		t.Fatalf("expected non-fatal outcome, got error: %v", err)
	}
	if outcome.Response != nil || outcome.Created {
		t.Fatalf("expected no response created, got %+v", outcome)
	}
	if outcome.Reason == "" {
		t.Fatalf("expected a reason for the skip")
	}

	// survey exists but has no current version
	s, err := CreateSurvey(ctx, db, "Survey", "velora")
	if err != nil {
		t.Fatalf("create survey: %v", err)
	}
	if _, err = CreateVersion(ctx, db, s.ID, NewVersion{Version: 1}); err != nil {
		t.Fatalf("create version: %v", err)
	}
	markReady(t, db, s.ID)

	outcome, err = EnsureResponseForForm(ctx, db, "form-1", "velora")
	if err != nil || outcome.Response != nil {
		t.Fatalf("expected non-fatal outcome, got %+v, %v", outcome, err)
	}
}

func TestEnsureAdapterCreates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s, _ := createDraftSurvey(t, db, "velora")
	markReady(t, db, s.ID)
	insertForm(t, db, "form-1", "velora")

	outcome, err := EnsureResponseForForm(ctx, db, "form-1", "velora")
	if err != nil {
		t.Fatalf("ensure response for form: %v", err)
	}
	if outcome.Response == nil || !outcome.Created {
		t.Fatalf("expected a created response, got %+v", outcome)
	}
}

func TestListResponsesFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sA, vA := createDraftSurvey(t, db, "velora")
	addTestQuestion(t, db, vA.ID, NewQuestion{Type: model.QuestionText, Label: "Comments", OrderIndex: 1})
	markReady(t, db, sA.ID)

	sB, vB := createDraftSurvey(t, db, "corsair")
	markReady(t, db, sB.ID)

	insertForm(t, db, "form-1", "velora")
	insertForm(t, db, "form-2", "corsair")

	rA, _, err := Ensure(ctx, db, "form-1", "velora")
	if err != nil {
		t.Fatalf("ensure A: %v", err)
	}
	if _, _, err = Ensure(ctx, db, "form-2", "corsair"); err != nil {
		t.Fatalf("ensure B: %v", err)
	}

	all, err := ListResponses(ctx, db, ResponseFilter{})
	if err != nil {
		t.Fatalf("list responses: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(all))
	}
	if all[0].Version == nil || all[0].Version.Survey == nil {
		t.Fatalf("expected version and survey attached")
	}

	bySurvey, err := ListResponses(ctx, db, ResponseFilter{SurveyID: sA.ID})
	if err != nil {
		t.Fatalf("list by survey: %v", err)
	}
	if len(bySurvey) != 1 || bySurvey[0].ID != rA.ID {
		t.Fatalf("expected only survey A's response, got %+v", bySurvey)
	}

	byVersion, err := ListResponses(ctx, db, ResponseFilter{VersionID: vB.ID})
	if err != nil {
		t.Fatalf("list by version: %v", err)
	}
	if len(byVersion) != 1 || byVersion[0].VersionID != vB.ID {
		t.Fatalf("expected only version B's response, got %+v", byVersion)
	}

	if _, err = SubmitAnswers(ctx, db, rA.ID, []AnswerItem{
		{QuestionID: vAQuestionID(t, db, vA.ID), ValueText: ptr("All good")},
	}); err != nil {
		t.Fatalf("submit answers: %v", err)
	}

	submitted, err := ListResponses(ctx, db, ResponseFilter{Status: model.ResponseSubmitted})
	if err != nil {
		t.Fatalf("list submitted: %v", err)
	}
	if len(submitted) != 1 || submitted[0].ID != rA.ID {
		t.Fatalf("expected only the submitted response, got %+v", submitted)
	}
}

func vAQuestionID(t *testing.T, db *sql.DB, versionID string) string {
	t.Helper()
	var id string
	err := db.QueryRow(`SELECT id FROM survey_question WHERE version_id = ?`, versionID).Scan(&id)
	if err != nil {
		t.Fatalf("question lookup: %v", err)
	}
	return id
}
