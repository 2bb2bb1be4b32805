package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/motorline/drive-survey/app"
	"github.com/motorline/drive-survey/httpx"
	"github.com/motorline/drive-survey/log"
	"github.com/motorline/drive-survey/survey"
)

func CreateVersion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var nv survey.NewVersion
		err := render.DecodeJSON(r.Body, &nv)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if nv.Version < 1 {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_version.validate", "version must be >= 1")
			return
		}

		v, err := survey.CreateVersion(r.Context(), app.DB, chi.URLParam(r, "id"), nv)
		if err != nil {
			writeDomainError(w, r, "create_version", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, v)
	}
}

func ListVersions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		versions, err := survey.ListVersions(r.Context(), app.DB, chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, "list_versions", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"versions": versions,
		})
	}
}

func GetCurrentVersion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := survey.CurrentVersion(r.Context(), app.DB, chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, "get_current_version", err)
			return
		}

		render.JSON(w, r, v)
	}
}

func GetFullVersion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := survey.GetFullVersion(r.Context(), app.DB, chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, "get_full_version", err)
			return
		}

		render.JSON(w, r, v)
	}
}

func AddQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var nq survey.NewQuestion
		err := render.DecodeJSON(r.Body, &nq)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		q, err := survey.AddQuestion(r.Context(), app.DB, chi.URLParam(r, "id"), nq)
		if err != nil {
			writeDomainError(w, r, "add_question", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, q)
	}
}

// CurrentVersionForBrand serves the full question set a client should
// render for a brand's current survey.
func CurrentVersionForBrand(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		brand := r.URL.Query().Get("brand")
		if brand == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "current_for_brand.validate", "brand is required")
			return
		}

		v, err := survey.CurrentVersionForBrand(r.Context(), app.DB, brand)
		if err != nil {
			writeDomainError(w, r, "current_for_brand", err)
			return
		}

		full, err := survey.GetFullVersion(r.Context(), app.DB, v.ID)
		if err != nil {
			writeDomainError(w, r, "current_for_brand.load", err)
			return
		}

		render.JSON(w, r, full)
	}
}
