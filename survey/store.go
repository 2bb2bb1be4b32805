// Package survey implements the survey definition and response
// validation engine: versioned question schemas, one-shot response
// lifecycle, and atomic answer submission.
package survey

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/motorline/drive-survey/model"
)

func newID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

func CreateSurvey(ctx context.Context, db *sql.DB, name, brand string) (model.Survey, error) {
	s := model.Survey{
		ID:        newID(),
		Name:      name,
		Brand:     brand,
		IsActive:  true,
		Status:    model.SurveyDraft,
		CreatedAt: now(),
	}
	s.UpdatedAt = s.CreatedAt

	_, err := db.ExecContext(ctx, `
		INSERT INTO survey (id, name, brand, is_active, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Brand, s.IsActive, s.Status, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return model.Survey{}, errors.Wrap(err, "insert survey")
	}
	return s, nil
}

func GetSurvey(ctx context.Context, db *sql.DB, id string) (model.Survey, error) {
	return scanSurvey(db.QueryRowContext(ctx, `
		SELECT id, name, brand, is_active, status, created_at, updated_at
		FROM survey WHERE id = ?`,
		id,
	), id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSurvey(row rowScanner, id string) (model.Survey, error) {
	var s model.Survey
	err := row.Scan(&s.ID, &s.Name, &s.Brand, &s.IsActive, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Survey{}, &NotFoundError{Kind: "survey", ID: id}
	}
	if err != nil {
		return model.Survey{}, errors.Wrap(err, "scan survey")
	}
	return s, nil
}

func ListSurveys(ctx context.Context, db *sql.DB) ([]model.Survey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, brand, is_active, status, created_at, updated_at
		FROM survey ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query surveys")
	}
	defer rows.Close()

	surveys := []model.Survey{}
	for rows.Next() {
		var s model.Survey
		err = rows.Scan(&s.ID, &s.Name, &s.Brand, &s.IsActive, &s.Status, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "scan survey")
		}
		surveys = append(surveys, s)
	}
	return surveys, rows.Err()
}

// ActiveByBrand lists active, ready surveys for a brand, newest first.
func ActiveByBrand(ctx context.Context, db *sql.DB, brand string) ([]model.Survey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, brand, is_active, status, created_at, updated_at
		FROM survey
		WHERE brand = ? AND is_active = 1 AND status = ?
		ORDER BY created_at DESC`,
		brand, model.SurveyReady,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query surveys by brand")
	}
	defer rows.Close()

	surveys := []model.Survey{}
	for rows.Next() {
		var s model.Survey
		err = rows.Scan(&s.ID, &s.Name, &s.Brand, &s.IsActive, &s.Status, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "scan survey")
		}
		surveys = append(surveys, s)
	}
	return surveys, rows.Err()
}

// SurveyUpdate carries the survey fields a caller may change. Nil fields
// are left untouched.
type SurveyUpdate struct {
	Name     *string             `json:"name"`
	Brand    *string             `json:"brand"`
	Status   *model.SurveyStatus `json:"status"`
	IsActive *bool               `json:"isActive"`
}

// UpdateSurvey applies an update, enforcing ready-immutability: once a
// survey is ready its name, brand and status are frozen. The active flag
// is non-structural and may still change.
func UpdateSurvey(ctx context.Context, db *sql.DB, id string, upd SurveyUpdate) (model.Survey, error) {
	s, err := GetSurvey(ctx, db, id)
	if err != nil {
		return model.Survey{}, err
	}

	if upd.Status != nil && !upd.Status.Valid() {
		return model.Survey{}, &ValidationError{Code: "invalid_status"}
	}

	if s.Status == model.SurveyReady {
		changesName := upd.Name != nil && *upd.Name != s.Name
		changesBrand := upd.Brand != nil && *upd.Brand != s.Brand
		changesStatus := upd.Status != nil && *upd.Status != model.SurveyReady
		if changesName || changesBrand || changesStatus {
			return model.Survey{}, &ImmutableError{Reason: "survey is ready and cannot be modified"}
		}
	}

	prevStatus := s.Status
	if upd.Name != nil {
		s.Name = *upd.Name
	}
	if upd.Brand != nil {
		s.Brand = *upd.Brand
	}
	if upd.Status != nil {
		s.Status = *upd.Status
	}
	if upd.IsActive != nil {
		s.IsActive = *upd.IsActive
	}
	s.UpdatedAt = now()

	// The write only lands if the status is still what we read it as,
	// so a concurrent draft->ready flip can never be overwritten with
	// the stale draft state.
	res, err := db.ExecContext(ctx, `
		UPDATE survey SET name = ?, brand = ?, status = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		s.Name, s.Brand, s.Status, s.IsActive, s.UpdatedAt, s.ID, prevStatus,
	)
	if err != nil {
		return model.Survey{}, errors.Wrap(err, "update survey")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Survey{}, errors.Wrap(err, "update survey")
	}
	if n < 1 {
		return model.Survey{}, ErrEditConflict
	}
	return s, nil
}

// DeleteSurvey removes a survey and, through cascades, its versions,
// questions and options. Recorded responses block the delete.
func DeleteSurvey(ctx context.Context, db *sql.DB, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM survey WHERE id = ?`, id)
	if isForeignKeyViolation(err) {
		return &ImmutableError{Reason: "survey has recorded responses and cannot be deleted"}
	}
	if err != nil {
		return errors.Wrap(err, "delete survey")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete survey")
	}
	if n < 1 {
		return &NotFoundError{Kind: "survey", ID: id}
	}
	return nil
}

// NewVersion describes a version to create under a survey.
type NewVersion struct {
	Version   int     `json:"version"`
	IsCurrent bool    `json:"isCurrent"`
	Notes     *string `json:"notes"`
}

// CreateVersion adds a version to a draft survey. When the new version is
// flagged current, the current flag is cleared on every sibling inside
// the same transaction, so at most one version is ever current.
func CreateVersion(ctx context.Context, db *sql.DB, surveyID string, nv NewVersion) (model.SurveyVersion, error) {
	s, err := GetSurvey(ctx, db, surveyID)
	if err != nil {
		return model.SurveyVersion{}, err
	}
	if s.Status == model.SurveyReady {
		return model.SurveyVersion{}, &ImmutableError{Reason: "survey is ready and cannot be modified"}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return model.SurveyVersion{}, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if nv.IsCurrent {
		_, err = tx.ExecContext(ctx, `
			UPDATE survey_version SET is_current = 0
			WHERE survey_id = ? AND is_current = 1`,
			s.ID,
		)
		if err != nil {
			return model.SurveyVersion{}, errors.Wrap(err, "clear current version")
		}
	}

	v := model.SurveyVersion{
		ID:        newID(),
		SurveyID:  s.ID,
		Version:   nv.Version,
		IsCurrent: nv.IsCurrent,
		Notes:     nv.Notes,
		CreatedAt: now(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO survey_version (id, survey_id, version, is_current, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.SurveyID, v.Version, v.IsCurrent, v.Notes, v.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.SurveyVersion{}, &ValidationError{Code: "duplicate_version_number"}
		}
		return model.SurveyVersion{}, errors.Wrap(err, "insert survey version")
	}

	if err = tx.Commit(); err != nil {
		return model.SurveyVersion{}, errors.Wrap(err, "commit survey version")
	}
	return v, nil
}

// ListVersions returns a survey's versions, newest version number first.
func ListVersions(ctx context.Context, db *sql.DB, surveyID string) ([]model.SurveyVersion, error) {
	if _, err := GetSurvey(ctx, db, surveyID); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, survey_id, version, is_current, notes, created_at
		FROM survey_version
		WHERE survey_id = ?
		ORDER BY version DESC`,
		surveyID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query survey versions")
	}
	defer rows.Close()

	versions := []model.SurveyVersion{}
	for rows.Next() {
		var v model.SurveyVersion
		err = rows.Scan(&v.ID, &v.SurveyID, &v.Version, &v.IsCurrent, &v.Notes, &v.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "scan survey version")
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func getVersion(ctx context.Context, q queryer, id string) (model.SurveyVersion, error) {
	var v model.SurveyVersion
	err := q.QueryRowContext(ctx, `
		SELECT id, survey_id, version, is_current, notes, created_at
		FROM survey_version WHERE id = ?`,
		id,
	).Scan(&v.ID, &v.SurveyID, &v.Version, &v.IsCurrent, &v.Notes, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SurveyVersion{}, &NotFoundError{Kind: "survey version", ID: id}
	}
	if err != nil {
		return model.SurveyVersion{}, errors.Wrap(err, "scan survey version")
	}
	return v, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewOption describes one selectable choice supplied at question
// creation. A zero OrderIndex defaults to the option's 1-based position.
type NewOption struct {
	Label      string `json:"label"`
	Value      string `json:"value"`
	OrderIndex int    `json:"orderIndex"`
}

// NewQuestion describes a question to add to a version.
type NewQuestion struct {
	Type       model.QuestionType `json:"type"`
	Label      string             `json:"label"`
	IsRequired bool               `json:"isRequired"`
	OrderIndex int                `json:"orderIndex"`
	MinValue   *float64           `json:"minValue"`
	MaxValue   *float64           `json:"maxValue"`
	Options    []NewOption        `json:"options"`
}

// AddQuestion appends a question (with its options, for option types) to
// a version. Rejected once the survey is ready or once the version has
// any response: a version is immutable as soon as it is live.
func AddQuestion(ctx context.Context, db *sql.DB, versionID string, nq NewQuestion) (model.SurveyQuestion, error) {
	v, err := getVersion(ctx, db, versionID)
	if err != nil {
		return model.SurveyQuestion{}, err
	}
	s, err := GetSurvey(ctx, db, v.SurveyID)
	if err != nil {
		return model.SurveyQuestion{}, err
	}
	if s.Status == model.SurveyReady {
		return model.SurveyQuestion{}, &ImmutableError{Reason: "survey is ready and cannot be modified"}
	}

	if err = validateNewQuestion(nq); err != nil {
		return model.SurveyQuestion{}, err
	}

	q := model.SurveyQuestion{
		ID:         newID(),
		VersionID:  v.ID,
		Type:       nq.Type,
		Label:      nq.Label,
		IsRequired: nq.IsRequired,
		OrderIndex: nq.OrderIndex,
	}
	if nq.Type == model.QuestionNumber {
		q.MinValue = nq.MinValue
		q.MaxValue = nq.MaxValue
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return model.SurveyQuestion{}, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	// Count inside the insert transaction, so a response started after
	// the check cannot commit ahead of the new question.
	var responseCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM survey_response WHERE version_id = ?`,
		v.ID,
	).Scan(&responseCount)
	if err != nil {
		return model.SurveyQuestion{}, errors.Wrap(err, "count responses")
	}
	if responseCount > 0 {
		return model.SurveyQuestion{}, &ImmutableError{Reason: "survey version is immutable because it already has responses"}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO survey_question (id, version_id, type, label, is_required, order_index, min_value, max_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.VersionID, q.Type, q.Label, q.IsRequired, q.OrderIndex, q.MinValue, q.MaxValue,
	)
	if err != nil {
		return model.SurveyQuestion{}, errors.Wrap(err, "insert survey question")
	}

	if nq.Type.HasOptions() {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO survey_question_option (id, question_id, label, value, order_index)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return model.SurveyQuestion{}, errors.Wrap(err, "prepare option insert")
		}
		defer stmt.Close()

		for i, no := range nq.Options {
			o := model.QuestionOption{
				ID:         newID(),
				QuestionID: q.ID,
				Label:      no.Label,
				Value:      no.Value,
				OrderIndex: no.OrderIndex,
			}
			if o.OrderIndex == 0 {
				o.OrderIndex = i + 1
			}
			_, err = stmt.ExecContext(ctx, o.ID, o.QuestionID, o.Label, o.Value, o.OrderIndex)
			if err != nil {
				if isUniqueViolation(err) {
					return model.SurveyQuestion{}, &ValidationError{Code: "duplicate_option_value", QuestionID: q.ID}
				}
				return model.SurveyQuestion{}, errors.Wrap(err, "insert question option")
			}
			q.Options = append(q.Options, o)
		}
	}

	if err = tx.Commit(); err != nil {
		return model.SurveyQuestion{}, errors.Wrap(err, "commit survey question")
	}
	return q, nil
}

func validateNewQuestion(nq NewQuestion) error {
	if !nq.Type.Valid() {
		return &ValidationError{Code: "invalid_question_type"}
	}
	if nq.OrderIndex < 1 {
		return &ValidationError{Code: "invalid_order_index"}
	}
	if nq.Type == model.QuestionNumber {
		if nq.MinValue == nil || nq.MaxValue == nil {
			return &ValidationError{Code: "missing_number_bounds"}
		}
		if *nq.MinValue > *nq.MaxValue {
			return &ValidationError{Code: "invalid_number_bounds"}
		}
	}
	if nq.Type.HasOptions() && len(nq.Options) == 0 {
		return &ValidationError{Code: "missing_options"}
	}
	return nil
}

// GetFullVersion loads a version with its questions and options, ordered
// by orderIndex (options secondarily by label).
func GetFullVersion(ctx context.Context, db *sql.DB, versionID string) (model.SurveyVersion, error) {
	v, err := getVersion(ctx, db, versionID)
	if err != nil {
		return model.SurveyVersion{}, err
	}
	s, err := GetSurvey(ctx, db, v.SurveyID)
	if err != nil {
		return model.SurveyVersion{}, err
	}
	v.Survey = &s

	v.Questions, err = loadQuestions(ctx, db, v.ID)
	if err != nil {
		return model.SurveyVersion{}, err
	}
	return v, nil
}

func loadQuestions(ctx context.Context, q queryer, versionID string) ([]model.SurveyQuestion, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, version_id, type, label, is_required, order_index, min_value, max_value
		FROM survey_question
		WHERE version_id = ?
		ORDER BY order_index ASC`,
		versionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query questions")
	}
	defer rows.Close()

	questions := []model.SurveyQuestion{}
	byID := map[string]int{}
	for rows.Next() {
		var sq model.SurveyQuestion
		err = rows.Scan(&sq.ID, &sq.VersionID, &sq.Type, &sq.Label, &sq.IsRequired, &sq.OrderIndex, &sq.MinValue, &sq.MaxValue)
		if err != nil {
			return nil, errors.Wrap(err, "scan question")
		}
		byID[sq.ID] = len(questions)
		questions = append(questions, sq)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	orows, err := q.QueryContext(ctx, `
		SELECT o.id, o.question_id, o.label, o.value, o.order_index
		FROM survey_question_option o
		INNER JOIN survey_question sq ON (sq.id = o.question_id)
		WHERE sq.version_id = ?
		ORDER BY o.order_index ASC, o.label ASC`,
		versionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query question options")
	}
	defer orows.Close()

	for orows.Next() {
		var o model.QuestionOption
		err = orows.Scan(&o.ID, &o.QuestionID, &o.Label, &o.Value, &o.OrderIndex)
		if err != nil {
			return nil, errors.Wrap(err, "scan question option")
		}
		if i, ok := byID[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, orows.Err()
}
