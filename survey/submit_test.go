package survey

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pkg/errors"

	"github.com/motorline/drive-survey/model"
)

// fixture is a ready survey with one question of each type:
// rating  number [0,100] required
// remarks text optional
// dealer  option_single {downtown, airport} required
// liked   option_multi {comfort, handling, sound} required
type fixture struct {
	db       *sql.DB
	response model.SurveyResponse
	rating   model.SurveyQuestion
	remarks  model.SurveyQuestion
	dealer   model.SurveyQuestion
	liked    model.SurveyQuestion
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)
	ctx := context.Background()

	f := &fixture{db: db}
	s, v := createDraftSurvey(t, db, "velora")

	f.rating = addTestQuestion(t, db, v.ID, NewQuestion{
		Type: model.QuestionNumber, Label: "Rate the drive", IsRequired: true, OrderIndex: 1,
		MinValue: ptr(0.0), MaxValue: ptr(100.0),
	})
	f.remarks = addTestQuestion(t, db, v.ID, NewQuestion{
		Type: model.QuestionText, Label: "Remarks", OrderIndex: 2,
	})
	f.dealer = addTestQuestion(t, db, v.ID, NewQuestion{
		Type: model.QuestionOptionSingle, Label: "Dealership", IsRequired: true, OrderIndex: 3,
		Options: []NewOption{
			{Label: "Downtown", Value: "downtown"},
			{Label: "Airport", Value: "airport"},
		},
	})
	f.liked = addTestQuestion(t, db, v.ID, NewQuestion{
		Type: model.QuestionOptionMulti, Label: "What did you like", IsRequired: true, OrderIndex: 4,
		Options: []NewOption{
			{Label: "Comfort", Value: "comfort"},
			{Label: "Handling", Value: "handling"},
			{Label: "Sound", Value: "sound"},
		},
	})
	markReady(t, db, s.ID)

	insertForm(t, db, "form-1", "velora")
	r, _, err := Ensure(ctx, db, "form-1", "velora")
	if err != nil {
		t.Fatalf("ensure response: %v", err)
	}
	f.response = r
	return f
}

func (f *fixture) validItems() []AnswerItem {
	return []AnswerItem{
		{QuestionID: f.rating.ID, ValueNumber: ptr(85.0)},
		{QuestionID: f.remarks.ID, ValueText: ptr("Great handling")},
		{QuestionID: f.dealer.ID, OptionIDs: []string{f.dealer.Options[0].ID}},
		{QuestionID: f.liked.ID, OptionIDs: []string{f.liked.Options[0].ID, f.liked.Options[2].ID}},
	}
}

func expectValidation(t *testing.T, err error, code, questionID string) {
	t.Helper()
	verrs, ok := ValidationErrors(err)
	if !ok {
		t.Fatalf("expected validation errors, got %v", err)
	}
	for _, e := range verrs {
		var verr *ValidationError
		if errors.As(e, &verr) && verr.Code == code && verr.QuestionID == questionID {
			return
		}
	}
	t.Fatalf("expected %s for question %s in %v", code, questionID, verrs)
}

func expectMissingRequired(t *testing.T, err error, questionIDs ...string) {
	t.Helper()
	verrs, ok := ValidationErrors(err)
	if !ok {
		t.Fatalf("expected validation errors, got %v", err)
	}
	for _, e := range verrs {
		var mrerr *MissingRequiredError
		if !errors.As(e, &mrerr) {
			continue
		}
		found := map[string]bool{}
		for _, id := range mrerr.QuestionIDs {
			found[id] = true
		}
		for _, id := range questionIDs {
			if !found[id] {
				t.Fatalf("expected %s among missing required %v", id, mrerr.QuestionIDs)
			}
		}
		return
	}
	t.Fatalf("expected MissingRequiredError in %v", verrs)
}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := SubmitAnswers(ctx, f.db, f.response.ID, f.validItems())
	if err != nil {
		t.Fatalf("submit answers: %v", err)
	}
	if r.Status != model.ResponseSubmitted {
		t.Fatalf("expected submitted status, got %q", r.Status)
	}
	if r.SubmittedAt == nil {
		t.Fatalf("expected submittedAt to be set")
	}
	// one row per answer, two for the multi select
	if len(r.Answers) != 5 {
		t.Fatalf("expected 5 answer rows, got %d", len(r.Answers))
	}

	for _, a := range r.Answers {
		if a.Question == nil {
			t.Fatalf("expected question attached to answer %s", a.ID)
		}
		if a.QuestionID == f.dealer.ID && (a.Option == nil || a.Option.Value != "downtown") {
			t.Fatalf("expected dealer option attached, got %+v", a.Option)
		}
	}
}

func TestSubmitUnknownResponse(t *testing.T) {
	f := newFixture(t)

	_, err := SubmitAnswers(context.Background(), f.db, "missing", f.validItems())
	var nferr *NotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSubmitIsOneShot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := SubmitAnswers(ctx, f.db, f.response.ID, f.validItems()); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := SubmitAnswers(ctx, f.db, f.response.ID, f.validItems())
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	n := countRows(t, f.db, `SELECT COUNT(*) FROM survey_answer WHERE response_id = ?`, f.response.ID)
	if n != 5 {
		t.Fatalf("expected no duplicate answer rows, got %d", n)
	}
}

func TestSubmitRejectsExistingAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// a stray answer row left by a partial earlier attempt
	_, err := f.db.Exec(`
		INSERT INTO survey_answer (id, response_id, question_id, option_id, value_number, value_text)
		VALUES (?, ?, ?, NULL, 50, NULL)`,
		newID(), f.response.ID, f.rating.ID,
	)
	if err != nil {
		t.Fatalf("seed stray answer: %v", err)
	}

	_, err = SubmitAnswers(ctx, f.db, f.response.ID, f.validItems())
	if !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	var status model.ResponseStatus
	if err = f.db.QueryRow(`SELECT status FROM survey_response WHERE id = ?`, f.response.ID).Scan(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != model.ResponseStarted {
		t.Fatalf("expected response to stay started, got %q", status)
	}
}

func TestSubmitNumberValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items := f.validItems()
	items[0].ValueNumber = ptr(150.0)
	_, err := SubmitAnswers(ctx, f.db, f.response.ID, items)
	expectValidation(t, err, CodeOutOfRange, f.rating.ID)

	items[0].ValueNumber = nil
	_, err = SubmitAnswers(ctx, f.db, f.response.ID, items)
	expectValidation(t, err, CodeMissingValue, f.rating.ID)

	items[0].ValueNumber = ptr(50.0)
	if _, err = SubmitAnswers(ctx, f.db, f.response.ID, items); err != nil {
		t.Fatalf("in-range submit: %v", err)
	}
}

func TestSubmitOptionSingleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items := f.validItems()
	items[2].OptionIDs = []string{f.dealer.Options[0].ID, f.dealer.Options[1].ID}
	_, err := SubmitAnswers(ctx, f.db, f.response.ID, items)
	expectValidation(t, err, CodeTooManyOptions, f.dealer.ID)

	items[2].OptionIDs = nil
	_, err = SubmitAnswers(ctx, f.db, f.response.ID, items)
	expectValidation(t, err, CodeMissingValue, f.dealer.ID)

	items[2].OptionIDs = []string{"not-an-option"}
	_, err = SubmitAnswers(ctx, f.db, f.response.ID, items)
	expectValidation(t, err, CodeUnknownOption, f.dealer.ID)

	// duplicates in the caller's list collapse to one selection
	items[2].OptionIDs = []string{f.dealer.Options[1].ID, f.dealer.Options[1].ID}
	r, err := SubmitAnswers(ctx, f.db, f.response.ID, items)
	if err != nil {
		t.Fatalf("deduplicated single submit: %v", err)
	}
	n := 0
	for _, a := range r.Answers {
		if a.QuestionID == f.dealer.ID {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("expected exactly one answer row for the single select, got %d", n)
	}
}

func TestSubmitOptionMultiRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items := f.validItems()
	r, err := SubmitAnswers(ctx, f.db, f.response.ID, items)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	rows := 0
	for _, a := range r.Answers {
		if a.QuestionID == f.liked.ID {
			if a.OptionID == nil {
				t.Fatalf("expected an option reference on multi answer")
			}
			rows++
		}
	}
	if rows != 2 {
		t.Fatalf("expected 2 rows for the multi select, got %d", rows)
	}
}

func TestSubmitOptionMultiEmptyRequired(t *testing.T) {
	f := newFixture(t)

	items := f.validItems()
	items[3].OptionIDs = []string{}
	_, err := SubmitAnswers(context.Background(), f.db, f.response.ID, items)
	expectMissingRequired(t, err, f.liked.ID)
}

func TestSubmitUnknownQuestion(t *testing.T) {
	f := newFixture(t)

	items := append(f.validItems(), AnswerItem{QuestionID: "stranger", ValueText: ptr("hi")})
	_, err := SubmitAnswers(context.Background(), f.db, f.response.ID, items)
	expectValidation(t, err, CodeUnknownQuestion, "stranger")
}

func TestSubmitDuplicateAnswer(t *testing.T) {
	f := newFixture(t)

	items := append(f.validItems(), AnswerItem{QuestionID: f.rating.ID, ValueNumber: ptr(10.0)})
	_, err := SubmitAnswers(context.Background(), f.db, f.response.ID, items)
	expectValidation(t, err, CodeDuplicateAnswer, f.rating.ID)
}

func TestSubmitMultiAllowsRepeatedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items := f.validItems()
	items[3].OptionIDs = []string{f.liked.Options[0].ID}
	items = append(items, AnswerItem{QuestionID: f.liked.ID, OptionIDs: []string{f.liked.Options[1].ID}})

	r, err := SubmitAnswers(ctx, f.db, f.response.ID, items)
	if err != nil {
		t.Fatalf("submit with repeated multi items: %v", err)
	}
	rows := 0
	for _, a := range r.Answers {
		if a.QuestionID == f.liked.ID {
			rows++
		}
	}
	if rows != 2 {
		t.Fatalf("expected 2 multi rows across repeated items, got %d", rows)
	}
}

func TestSubmitMultiRepeatedOptionAcrossItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// comfort selected twice, through two separate items
	items := f.validItems()
	items[3].OptionIDs = []string{f.liked.Options[0].ID, f.liked.Options[1].ID}
	items = append(items, AnswerItem{QuestionID: f.liked.ID, OptionIDs: []string{f.liked.Options[0].ID}})

	r, err := SubmitAnswers(ctx, f.db, f.response.ID, items)
	if err != nil {
		t.Fatalf("submit with option repeated across items: %v", err)
	}
	got := map[string]int{}
	for _, a := range r.Answers {
		if a.QuestionID == f.liked.ID {
			got[*a.OptionID]++
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 distinct multi options, got %v", got)
	}
	for id, n := range got {
		if n != 1 {
			t.Fatalf("expected one row per selected option, got %d for %s", n, id)
		}
	}
}

func TestSubmitMissingRequiredCollectsAll(t *testing.T) {
	f := newFixture(t)

	// only the optional remarks: all three required questions missing
	items := []AnswerItem{{QuestionID: f.remarks.ID, ValueText: ptr("meh")}}
	_, err := SubmitAnswers(context.Background(), f.db, f.response.ID, items)
	expectMissingRequired(t, err, f.rating.ID, f.dealer.ID, f.liked.ID)

	// a failed submission persists nothing
	n := countRows(t, f.db, `SELECT COUNT(*) FROM survey_answer WHERE response_id = ?`, f.response.ID)
	if n != 0 {
		t.Fatalf("expected no answers persisted after failed submit, got %d", n)
	}
}

func TestSubmitOptionalEmptyTextStoredAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items := f.validItems()
	items[1].ValueText = ptr("   ")
	r, err := SubmitAnswers(ctx, f.db, f.response.ID, items)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	for _, a := range r.Answers {
		if a.QuestionID == f.remarks.ID {
			if a.ValueText != nil {
				t.Fatalf("expected blank optional text stored as absent, got %q", *a.ValueText)
			}
			return
		}
	}
	t.Fatalf("expected an answer row for the optional text question")
}

func TestSubmitRequiredTextBlank(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s, v := createDraftSurvey(t, db, "velora")
	q := addTestQuestion(t, db, v.ID, NewQuestion{
		Type: model.QuestionText, Label: "Comments", IsRequired: true, OrderIndex: 1,
	})
	markReady(t, db, s.ID)
	insertForm(t, db, "form-1", "velora")
	r, _, err := Ensure(ctx, db, "form-1", "velora")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	_, err = SubmitAnswers(ctx, db, r.ID, []AnswerItem{{QuestionID: q.ID, ValueText: ptr("  ")}})
	expectValidation(t, err, CodeMissingValue, q.ID)
}

// Full walkthrough of a survey's life, from draft to a submitted
// response.
func TestSurveyLifecycleEndToEnd(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s, err := CreateSurvey(ctx, db, "Post drive follow-up", "velora")
	if err != nil {
		t.Fatalf("create survey: %v", err)
	}
	v, err := CreateVersion(ctx, db, s.ID, NewVersion{Version: 1, IsCurrent: true, Notes: ptr("initial")})
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	q, err := AddQuestion(ctx, db, v.ID, NewQuestion{
		Type: model.QuestionText, Label: "How was it?", IsRequired: true, OrderIndex: 1,
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	markReady(t, db, s.ID)

	_, err = AddQuestion(ctx, db, v.ID, NewQuestion{
		Type: model.QuestionText, Label: "Anything else?", OrderIndex: 2,
	})
	var imerr *ImmutableError
	if !errors.As(err, &imerr) {
		t.Fatalf("expected ImmutableError after ready, got %v", err)
	}

	insertForm(t, db, "form-1", "velora")
	r, created, err := Ensure(ctx, db, "form-1", "velora")
	if err != nil || !created {
		t.Fatalf("ensure: created=%v, err=%v", created, err)
	}
	if r.Status != model.ResponseStarted {
		t.Fatalf("expected started response, got %q", r.Status)
	}

	submitted, err := SubmitAnswers(ctx, db, r.ID, []AnswerItem{
		{QuestionID: q.ID, ValueText: ptr("Smooth and quiet")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != model.ResponseSubmitted || submitted.SubmittedAt == nil {
		t.Fatalf("expected submitted with timestamp, got %+v", submitted)
	}

	_, err = SubmitAnswers(ctx, db, r.ID, []AnswerItem{
		{QuestionID: q.ID, ValueText: ptr("Again")},
	})
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}
