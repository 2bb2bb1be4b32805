package routes

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/motorline/drive-survey/app"
	"github.com/motorline/drive-survey/forms"
	"github.com/motorline/drive-survey/httpx"
	"github.com/motorline/drive-survey/log"
	"github.com/motorline/drive-survey/survey"
)

func CreateForm(app app.App) http.HandlerFunc {
	type request struct {
		Reference string `json:"reference"`
		Brand     string `json:"brand"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if req.Reference == "" || req.Brand == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_form.validate", "reference and brand are required")
			return
		}

		f, err := forms.Create(r.Context(), app.DB, req.Reference, req.Brand)
		if err != nil {
			writeDomainError(w, r, "create_form", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, f)
	}
}

func ListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := forms.List(r.Context(), app.DB)
		if err != nil {
			writeDomainError(w, r, "list_forms", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"forms": list,
		})
	}
}

func GetFormById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := forms.Get(r.Context(), app.DB, chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, "get_form", err)
			return
		}

		render.JSON(w, r, f)
	}
}

// EnsureFormResponse is the automation hook the test drive workflow calls
// once a drive completes. It never fails on survey misconfiguration.
func EnsureFormResponse(app app.App) http.HandlerFunc {
	type request struct {
		Brand string `json:"brand"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		formID := chi.URLParam(r, "id")

		// the body is optional; an absent brand falls back below
		var req request
		err := render.DecodeJSON(r.Body, &req)
		if err != nil && !errors.Is(err, io.EOF) {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		brand := req.Brand
		if brand == "" {
			// fall back to the form's own brand tag
			f, err := forms.Get(r.Context(), app.DB, formID)
			if err != nil {
				writeDomainError(w, r, "ensure_form_response.form", err)
				return
			}
			brand = f.Brand
		}

		outcome, err := survey.EnsureResponseForForm(r.Context(), app.DB, formID, brand)
		if err != nil {
			writeDomainError(w, r, "ensure_form_response", err)
			return
		}

		if outcome.Created {
			w.WriteHeader(http.StatusCreated)
		}
		render.JSON(w, r, outcome)
	}
}
