package survey

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/motorline/drive-survey/log"
	"github.com/motorline/drive-survey/model"
)

// EnsureOutcome reports what EnsureResponseForForm did. When Response is
// nil the survey configuration for the brand was unusable and Reason says
// why; the caller's workflow is not expected to fail on that.
type EnsureOutcome struct {
	Response *model.SurveyResponse `json:"response"`
	Created  bool                  `json:"created"`
	Reason   string                `json:"reason,omitempty"`
}

// EnsureResponseForForm is the idempotent hook the surrounding test drive
// workflow calls after a drive completes. Survey misconfiguration (no
// active survey, no current version) and an unknown form are demoted to a
// non-fatal "no response created" outcome so unrelated workflow steps are
// never blocked by survey setup problems. Storage errors still propagate.
func EnsureResponseForForm(ctx context.Context, db *sql.DB, formID, brand string) (EnsureOutcome, error) {
	r, created, err := Ensure(ctx, db, formID, brand)
	if err == nil {
		return EnsureOutcome{Response: &r, Created: created}, nil
	}

	var nferr *NotFoundError
	var naerr *NoActiveSurveyError
	var ncerr *NoCurrentVersionError
	if errors.As(err, &nferr) || errors.As(err, &naerr) || errors.As(err, &ncerr) {
		log.Warnf("survey.ensure_response: form %s, brand %s: %s", formID, brand, err)
		return EnsureOutcome{Reason: err.Error()}, nil
	}

	return EnsureOutcome{}, err
}
