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

func CreateSurvey(app app.App) http.HandlerFunc {
	type request struct {
		Name  string `json:"name"`
		Brand string `json:"brand"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if req.Name == "" || req.Brand == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_survey.validate", "name and brand are required")
			return
		}

		s, err := survey.CreateSurvey(r.Context(), app.DB, req.Name, req.Brand)
		if err != nil {
			writeDomainError(w, r, "create_survey", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, s)
	}
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveys, err := survey.ListSurveys(r.Context(), app.DB)
		if err != nil {
			writeDomainError(w, r, "list_surveys", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"surveys": surveys,
		})
	}
}

func GetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := survey.GetSurvey(r.Context(), app.DB, chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, "get_survey", err)
			return
		}

		render.JSON(w, r, s)
	}
}

func UpdateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var upd survey.SurveyUpdate
		err := render.DecodeJSON(r.Body, &upd)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		s, err := survey.UpdateSurvey(r.Context(), app.DB, chi.URLParam(r, "id"), upd)
		if err != nil {
			writeDomainError(w, r, "update_survey", err)
			return
		}

		render.JSON(w, r, s)
	}
}

func DeleteSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := survey.DeleteSurvey(r.Context(), app.DB, chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, "delete_survey", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
