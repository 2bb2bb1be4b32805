package survey

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/motorline/drive-survey/config"
	"github.com/motorline/drive-survey/database"
	"github.com/motorline/drive-survey/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := config.Config{DBPath: filepath.Join(t.TempDir(), "test.sqlite")}
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertForm(t *testing.T, db *sql.DB, id, brand string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO test_drive_form (id, reference, brand, created_at)
		VALUES (?, ?, ?, ?)`,
		id, "TD-"+id, brand, now(),
	)
	if err != nil {
		t.Fatalf("insert test drive form: %v", err)
	}
}

func ptr[T any](v T) *T {
	return &v
}

// createDraftSurvey builds a draft survey with one current version.
// Questions must be added before calling markReady.
func createDraftSurvey(t *testing.T, db *sql.DB, brand string) (model.Survey, model.SurveyVersion) {
	t.Helper()
	ctx := context.Background()

	s, err := CreateSurvey(ctx, db, "Post test drive survey", brand)
	if err != nil {
		t.Fatalf("create survey: %v", err)
	}
	v, err := CreateVersion(ctx, db, s.ID, NewVersion{Version: 1, IsCurrent: true})
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	return s, v
}

func markReady(t *testing.T, db *sql.DB, surveyID string) {
	t.Helper()
	_, err := UpdateSurvey(context.Background(), db, surveyID, SurveyUpdate{Status: ptr(model.SurveyReady)})
	if err != nil {
		t.Fatalf("mark survey ready: %v", err)
	}
}

func addTestQuestion(t *testing.T, db *sql.DB, versionID string, nq NewQuestion) model.SurveyQuestion {
	t.Helper()
	q, err := AddQuestion(context.Background(), db, versionID, nq)
	if err != nil {
		t.Fatalf("add question %q: %v", nq.Label, err)
	}
	return q
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count query: %v", err)
	}
	return n
}
