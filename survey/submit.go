package survey

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/motorline/drive-survey/model"
)

// AnswerItem is one submitted answer. Exactly one payload applies,
// depending on the question's type; the others are ignored.
type AnswerItem struct {
	QuestionID  string   `json:"questionId"`
	ValueNumber *float64 `json:"valueNumber"`
	ValueText   *string  `json:"valueText"`
	OptionIDs   []string `json:"optionIds"`
}

// SubmitAnswers validates a batch of answers against the question schema
// of the response's version and, only if the whole batch passes, persists
// every answer row and flips the response to submitted in one
// transaction. Submission is one-shot: a submitted response can never be
// submitted again, and a response with any persisted answer is rejected
// outright.
//
// Validation failures are collected rather than cutting out at the first
// bad item, so one round trip reports everything wrong with the form.
func SubmitAnswers(ctx context.Context, db *sql.DB, responseID string, items []AnswerItem) (model.SurveyResponse, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return model.SurveyResponse{}, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var r model.SurveyResponse
	var submittedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, version_id, form_id, status, submitted_at, created_at, updated_at
		FROM survey_response WHERE id = ?`,
		responseID,
	).Scan(&r.ID, &r.VersionID, &r.FormID, &r.Status, &submittedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SurveyResponse{}, &NotFoundError{Kind: "survey response", ID: responseID}
	}
	if err != nil {
		return model.SurveyResponse{}, errors.Wrap(err, "scan survey response")
	}

	if r.Status == model.ResponseSubmitted {
		return model.SurveyResponse{}, ErrAlreadySubmitted
	}

	var answerCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM survey_answer WHERE response_id = ?`,
		r.ID,
	).Scan(&answerCount)
	if err != nil {
		return model.SurveyResponse{}, errors.Wrap(err, "count answers")
	}
	if answerCount > 0 {
		return model.SurveyResponse{}, ErrAlreadyAnswered
	}

	questions, err := loadQuestions(ctx, tx, r.VersionID)
	if err != nil {
		return model.SurveyResponse{}, err
	}

	staged, verr := validateAnswers(&r, questions, items)
	if verr != nil {
		return model.SurveyResponse{}, verr
	}

	if len(staged) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO survey_answer (id, response_id, question_id, option_id, value_number, value_text)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return model.SurveyResponse{}, errors.Wrap(err, "prepare answer insert")
		}
		defer stmt.Close()

		for _, a := range staged {
			_, err = stmt.ExecContext(ctx, a.ID, a.ResponseID, a.QuestionID, a.OptionID, a.ValueNumber, a.ValueText)
			if err != nil {
				return model.SurveyResponse{}, errors.Wrap(err, "insert answer")
			}
		}
	}

	// Scope the flip to exactly this row, re-checking the status inside
	// the same transaction as the answer writes, so a concurrent submit
	// cannot double-insert.
	ts := now()
	res, err := tx.ExecContext(ctx, `
		UPDATE survey_response
		SET status = ?, submitted_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		model.ResponseSubmitted, ts, ts, r.ID, model.ResponseStarted,
	)
	if err != nil {
		return model.SurveyResponse{}, errors.Wrap(err, "submit response")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.SurveyResponse{}, errors.Wrap(err, "submit response")
	}
	if n < 1 {
		return model.SurveyResponse{}, ErrAlreadySubmitted
	}

	if err = tx.Commit(); err != nil {
		return model.SurveyResponse{}, errors.Wrap(err, "commit submission")
	}

	return GetResponse(ctx, db, r.ID)
}

// validateAnswers runs every per-item check and the completeness check,
// staging answer rows as it goes. Items are processed in caller order;
// nothing is staged for a failed item, but later items are still checked
// so the error report is as complete as possible.
func validateAnswers(r *model.SurveyResponse, questions []model.SurveyQuestion, items []AnswerItem) ([]model.SurveyAnswer, error) {
	byID := map[string]*model.SurveyQuestion{}
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	var verr *multierror.Error
	seen := map[string]bool{}
	stagedPerQuestion := map[string]int{}
	stagedOption := map[string]bool{}
	staged := []model.SurveyAnswer{}

	stage := func(a model.SurveyAnswer) {
		a.ID = newID()
		a.ResponseID = r.ID
		stagedPerQuestion[a.QuestionID]++
		staged = append(staged, a)
	}

	for _, item := range items {
		q, ok := byID[item.QuestionID]
		if !ok {
			verr = multierror.Append(verr, &ValidationError{Code: CodeUnknownQuestion, QuestionID: item.QuestionID})
			continue
		}
		if seen[q.ID] && q.Type != model.QuestionOptionMulti {
			verr = multierror.Append(verr, &ValidationError{Code: CodeDuplicateAnswer, QuestionID: q.ID})
			continue
		}
		seen[q.ID] = true

		switch q.Type {
		case model.QuestionNumber:
			if item.ValueNumber == nil {
				verr = multierror.Append(verr, &ValidationError{Code: CodeMissingValue, QuestionID: q.ID})
				continue
			}
			if (q.MinValue != nil && *item.ValueNumber < *q.MinValue) ||
				(q.MaxValue != nil && *item.ValueNumber > *q.MaxValue) {
				verr = multierror.Append(verr, &ValidationError{Code: CodeOutOfRange, QuestionID: q.ID})
				continue
			}
			stage(model.SurveyAnswer{QuestionID: q.ID, ValueNumber: item.ValueNumber})

		case model.QuestionText:
			text := ""
			if item.ValueText != nil {
				text = strings.TrimSpace(*item.ValueText)
			}
			if text == "" {
				if q.IsRequired {
					verr = multierror.Append(verr, &ValidationError{Code: CodeMissingValue, QuestionID: q.ID})
					continue
				}
				// empty optional text is "no answer", stored absent
				stage(model.SurveyAnswer{QuestionID: q.ID})
				continue
			}
			stage(model.SurveyAnswer{QuestionID: q.ID, ValueText: &text})

		case model.QuestionOptionSingle, model.QuestionOptionMulti:
			optionIDs := dedupe(item.OptionIDs)
			if len(optionIDs) == 0 {
				if q.IsRequired {
					verr = multierror.Append(verr, &ValidationError{Code: CodeMissingValue, QuestionID: q.ID})
				}
				continue
			}
			if q.Type == model.QuestionOptionSingle && len(optionIDs) > 1 {
				verr = multierror.Append(verr, &ValidationError{Code: CodeTooManyOptions, QuestionID: q.ID})
				continue
			}

			valid := map[string]bool{}
			for _, o := range q.Options {
				valid[o.ID] = true
			}
			for _, optionID := range optionIDs {
				if !valid[optionID] {
					verr = multierror.Append(verr, &ValidationError{Code: CodeUnknownOption, QuestionID: q.ID, OptionID: optionID})
					continue
				}
				// One row per selected option, even when the same
				// option shows up again in a later multi item.
				if stagedOption[q.ID+"/"+optionID] {
					continue
				}
				stagedOption[q.ID+"/"+optionID] = true
				optionID := optionID
				stage(model.SurveyAnswer{QuestionID: q.ID, OptionID: &optionID})
			}
		}
	}

	// Completeness: every required question needs at least one staged
	// answer. A required multi-select whose id was seen but produced no
	// option rows still counts as missing.
	missing := []string{}
	for i := range questions {
		q := &questions[i]
		if !q.IsRequired {
			continue
		}
		if !seen[q.ID] || (q.Type == model.QuestionOptionMulti && stagedPerQuestion[q.ID] == 0) {
			missing = append(missing, q.ID)
		}
	}
	if len(missing) > 0 {
		verr = multierror.Append(verr, &MissingRequiredError{QuestionIDs: missing})
	}

	if err := verr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return staged, nil
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
