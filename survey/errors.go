package survey

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// NotFoundError reports an absent record. Kind names the record type
// ("survey", "survey version", "test drive form", ...).
type NotFoundError struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ImmutableError reports an edit attempted on a ready survey or on a
// version that already has responses.
type ImmutableError struct {
	Reason string `json:"reason"`
}

func (e *ImmutableError) Error() string {
	return e.Reason
}

// Configuration errors surfaced by the version selector. Both mean the
// brand has no usable survey set up; neither is retriable.
type NoActiveSurveyError struct {
	Brand string `json:"brand"`
}

func (e *NoActiveSurveyError) Error() string {
	return fmt.Sprintf("no active survey found for brand %q", e.Brand)
}

type NoCurrentVersionError struct {
	SurveyID string `json:"surveyId"`
}

func (e *NoCurrentVersionError) Error() string {
	return fmt.Sprintf("survey %s has no current version", e.SurveyID)
}

var (
	ErrAlreadySubmitted = errors.New("survey response is already submitted")
	ErrAlreadyAnswered  = errors.New("survey response already has answers")

	// ErrEditConflict means the record changed between read and write;
	// the caller should re-read and retry.
	ErrEditConflict = errors.New("survey was modified concurrently")
)

// Validation codes for per-item answer failures.
const (
	CodeUnknownQuestion = "unknown_question"
	CodeDuplicateAnswer = "duplicate_answer"
	CodeMissingValue    = "missing_value"
	CodeOutOfRange      = "out_of_range"
	CodeTooManyOptions  = "too_many_options"
	CodeUnknownOption   = "unknown_option"
)

// ValidationError is one per-item failure from answer submission.
type ValidationError struct {
	Code       string `json:"code"`
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId,omitempty"`
}

func (e *ValidationError) Error() string {
	switch {
	case e.OptionID != "":
		return fmt.Sprintf("%s: question %s, option %s", e.Code, e.QuestionID, e.OptionID)
	case e.QuestionID != "":
		return fmt.Sprintf("%s: question %s", e.Code, e.QuestionID)
	}
	return e.Code
}

// MissingRequiredError names every required question left unanswered, so
// the caller can fix the whole form in one round trip.
type MissingRequiredError struct {
	QuestionIDs []string `json:"questionIds"`
}

func (e *MissingRequiredError) Error() string {
	return "missing required answers for question(s): " + strings.Join(e.QuestionIDs, ", ")
}

func (e *MissingRequiredError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code        string   `json:"code"`
		QuestionIDs []string `json:"questionIds"`
	}{"missing_required_answers", e.QuestionIDs})
}

// ValidationErrors unpacks the failures collected during a submission.
// It reports false for any other kind of error.
func ValidationErrors(err error) ([]error, bool) {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.Errors, true
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return []error{verr}, true
	}
	var mrerr *MissingRequiredError
	if errors.As(err, &mrerr) {
		return []error{mrerr}, true
	}
	return nil, false
}
