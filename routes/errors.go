package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/motorline/drive-survey/forms"
	"github.com/motorline/drive-survey/httpx"
	"github.com/motorline/drive-survey/log"
	"github.com/motorline/drive-survey/survey"
)

// writeDomainError maps the survey engine's error taxonomy onto HTTP.
func writeDomainError(w http.ResponseWriter, r *http.Request, code string, err error) {
	var nferr *survey.NotFoundError
	var fnferr *forms.NotFoundError
	if errors.As(err, &nferr) || errors.As(err, &fnferr) {
		httpx.LogNotFound(w, code, err)
		return
	}

	var naerr *survey.NoActiveSurveyError
	var ncerr *survey.NoCurrentVersionError
	if errors.As(err, &naerr) || errors.As(err, &ncerr) {
		httpx.LogStatusMsg(w, http.StatusNotFound, log.WarnLevel, code, "%s", err)
		return
	}

	var imerr *survey.ImmutableError
	if errors.As(err, &imerr) ||
		errors.Is(err, survey.ErrAlreadySubmitted) ||
		errors.Is(err, survey.ErrAlreadyAnswered) ||
		errors.Is(err, survey.ErrEditConflict) {
		httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, code, "%s", err)
		return
	}

	if verrs, ok := survey.ValidationErrors(err); ok {
		log.Debugf("%s: %s", code, err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]any{
			"error":  "validation_failed",
			"errors": verrs,
		})
		return
	}

	httpx.LogInternalError(w, code, err)
}
