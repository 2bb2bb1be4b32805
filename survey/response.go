package survey

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/motorline/drive-survey/model"
)

func getForm(ctx context.Context, q queryer, id string) (model.TestDriveForm, error) {
	var f model.TestDriveForm
	err := q.QueryRowContext(ctx, `
		SELECT id, reference, brand, created_at
		FROM test_drive_form WHERE id = ?`,
		id,
	).Scan(&f.ID, &f.Reference, &f.Brand, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TestDriveForm{}, &NotFoundError{Kind: "test drive form", ID: id}
	}
	if err != nil {
		return model.TestDriveForm{}, errors.Wrap(err, "scan test drive form")
	}
	return f, nil
}

func findResponseByPair(ctx context.Context, q queryer, versionID, formID string) (model.SurveyResponse, bool, error) {
	var r model.SurveyResponse
	var submittedAt sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT id, version_id, form_id, status, submitted_at, created_at, updated_at
		FROM survey_response
		WHERE version_id = ? AND form_id = ?`,
		versionID, formID,
	).Scan(&r.ID, &r.VersionID, &r.FormID, &r.Status, &submittedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SurveyResponse{}, false, nil
	}
	if err != nil {
		return model.SurveyResponse{}, false, errors.Wrap(err, "scan survey response")
	}
	if submittedAt.Valid {
		r.SubmittedAt = &submittedAt.Time
	}
	return r, true, nil
}

// getOrCreateResponse is the race-tolerant arena upsert at the center of
// the response lifecycle: attempt the insert, and when another caller won
// the unique (version, form) slot first, re-read and return their row.
// The returned bool is true only for the caller that actually inserted.
func getOrCreateResponse(ctx context.Context, db *sql.DB, versionID, formID string) (model.SurveyResponse, bool, error) {
	if r, found, err := findResponseByPair(ctx, db, versionID, formID); err != nil || found {
		return r, false, err
	}

	r := model.SurveyResponse{
		ID:        newID(),
		VersionID: versionID,
		FormID:    formID,
		Status:    model.ResponseStarted,
		CreatedAt: now(),
	}
	r.UpdatedAt = r.CreatedAt

	_, err := db.ExecContext(ctx, `
		INSERT INTO survey_response (id, version_id, form_id, status, submitted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?)`,
		r.ID, r.VersionID, r.FormID, r.Status, r.CreatedAt, r.UpdatedAt,
	)
	if err == nil {
		return r, true, nil
	}
	if !isUniqueViolation(err) {
		return model.SurveyResponse{}, false, errors.Wrap(err, "insert survey response")
	}

	// Lost the creation race; the winner's row must exist now.
	winner, found, err := findResponseByPair(ctx, db, versionID, formID)
	if err != nil {
		return model.SurveyResponse{}, false, err
	}
	if !found {
		return model.SurveyResponse{}, false, errors.New("survey response vanished after losing creation race")
	}
	return winner, false, nil
}

// Start idempotently creates (or fetches) the response for a version and
// an external test drive form. Repeat calls return the same row.
func Start(ctx context.Context, db *sql.DB, versionID, formID string) (model.SurveyResponse, error) {
	if _, err := getVersion(ctx, db, versionID); err != nil {
		return model.SurveyResponse{}, err
	}
	if _, err := getForm(ctx, db, formID); err != nil {
		return model.SurveyResponse{}, err
	}

	r, _, err := getOrCreateResponse(ctx, db, versionID, formID)
	return r, err
}

// Ensure resolves the current ready version for a brand and performs the
// same idempotent get-or-create as Start. The created flag is true for
// exactly one caller per (version, form) pair, however many race.
func Ensure(ctx context.Context, db *sql.DB, formID, brand string) (model.SurveyResponse, bool, error) {
	if _, err := getForm(ctx, db, formID); err != nil {
		return model.SurveyResponse{}, false, err
	}

	v, err := CurrentVersionForBrand(ctx, db, brand)
	if err != nil {
		return model.SurveyResponse{}, false, err
	}

	return getOrCreateResponse(ctx, db, v.ID, formID)
}

// ResponseFilter narrows ListResponses. Zero fields match everything.
type ResponseFilter struct {
	Status    model.ResponseStatus
	SurveyID  string
	VersionID string
}

// ListResponses returns responses most recently updated first, each with
// its version and survey attached.
func ListResponses(ctx context.Context, db *sql.DB, filter ResponseFilter) ([]model.SurveyResponse, error) {
	query := `
		SELECT
			r.id, r.version_id, r.form_id, r.status, r.submitted_at, r.created_at, r.updated_at,
			v.id, v.survey_id, v.version, v.is_current, v.notes, v.created_at,
			s.id, s.name, s.brand, s.is_active, s.status, s.created_at, s.updated_at
		FROM survey_response r
		INNER JOIN survey_version v ON (v.id = r.version_id)
		INNER JOIN survey s ON (s.id = v.survey_id)
		WHERE 1 = 1`
	args := []any{}
	if filter.Status != "" {
		query += ` AND r.status = ?`
		args = append(args, filter.Status)
	}
	if filter.SurveyID != "" {
		query += ` AND s.id = ?`
		args = append(args, filter.SurveyID)
	}
	if filter.VersionID != "" {
		query += ` AND v.id = ?`
		args = append(args, filter.VersionID)
	}
	query += ` ORDER BY r.updated_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query survey responses")
	}
	defer rows.Close()

	responses := []model.SurveyResponse{}
	for rows.Next() {
		var r model.SurveyResponse
		var v model.SurveyVersion
		var s model.Survey
		var submittedAt sql.NullTime
		err = rows.Scan(
			&r.ID, &r.VersionID, &r.FormID, &r.Status, &submittedAt, &r.CreatedAt, &r.UpdatedAt,
			&v.ID, &v.SurveyID, &v.Version, &v.IsCurrent, &v.Notes, &v.CreatedAt,
			&s.ID, &s.Name, &s.Brand, &s.IsActive, &s.Status, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scan survey response")
		}
		if submittedAt.Valid {
			r.SubmittedAt = &submittedAt.Time
		}
		v.Survey = &s
		r.Version = &v
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// GetResponse loads one response with its version, survey, form and
// answers (each answer carrying its question and selected option).
func GetResponse(ctx context.Context, db *sql.DB, id string) (model.SurveyResponse, error) {
	var r model.SurveyResponse
	var submittedAt sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT id, version_id, form_id, status, submitted_at, created_at, updated_at
		FROM survey_response WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.VersionID, &r.FormID, &r.Status, &submittedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SurveyResponse{}, &NotFoundError{Kind: "survey response", ID: id}
	}
	if err != nil {
		return model.SurveyResponse{}, errors.Wrap(err, "scan survey response")
	}
	if submittedAt.Valid {
		r.SubmittedAt = &submittedAt.Time
	}

	v, err := GetFullVersion(ctx, db, r.VersionID)
	if err != nil {
		return model.SurveyResponse{}, err
	}
	r.Version = &v

	f, err := getForm(ctx, db, r.FormID)
	if err != nil {
		return model.SurveyResponse{}, err
	}
	r.Form = &f

	questions := map[string]*model.SurveyQuestion{}
	options := map[string]*model.QuestionOption{}
	for i := range v.Questions {
		q := &v.Questions[i]
		questions[q.ID] = q
		for j := range q.Options {
			options[q.Options[j].ID] = &q.Options[j]
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, response_id, question_id, option_id, value_number, value_text
		FROM survey_answer
		WHERE response_id = ?`,
		r.ID,
	)
	if err != nil {
		return model.SurveyResponse{}, errors.Wrap(err, "query survey answers")
	}
	defer rows.Close()

	r.Answers = []model.SurveyAnswer{}
	for rows.Next() {
		var a model.SurveyAnswer
		err = rows.Scan(&a.ID, &a.ResponseID, &a.QuestionID, &a.OptionID, &a.ValueNumber, &a.ValueText)
		if err != nil {
			return model.SurveyResponse{}, errors.Wrap(err, "scan survey answer")
		}
		a.Question = questions[a.QuestionID]
		if a.OptionID != nil {
			a.Option = options[*a.OptionID]
		}
		r.Answers = append(r.Answers, a)
	}
	return r, rows.Err()
}
