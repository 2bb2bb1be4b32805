package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/motorline/drive-survey/app"
	"github.com/motorline/drive-survey/httpx"
	"github.com/motorline/drive-survey/log"
	"github.com/motorline/drive-survey/model"
	"github.com/motorline/drive-survey/survey"
)

func StartResponse(app app.App) http.HandlerFunc {
	type request struct {
		SurveyVersionID string `json:"surveyVersionId"`
		TestDriveFormID string `json:"testDriveFormId"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if req.SurveyVersionID == "" || req.TestDriveFormID == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "start_response.validate",
				"surveyVersionId and testDriveFormId are required")
			return
		}

		resp, err := survey.Start(r.Context(), app.DB, req.SurveyVersionID, req.TestDriveFormID)
		if err != nil {
			writeDomainError(w, r, "start_response", err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func SubmitAnswers(app app.App) http.HandlerFunc {
	type request struct {
		Answers []survey.AnswerItem `json:"answers"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		resp, err := survey.SubmitAnswers(r.Context(), app.DB, chi.URLParam(r, "id"), req.Answers)
		if err != nil {
			writeDomainError(w, r, "submit_answers", err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func GetResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := survey.GetResponse(r.Context(), app.DB, chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, "get_response", err)
			return
		}

		render.JSON(w, r, resp)
	}
}

func ListResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		filter := survey.ResponseFilter{
			Status:    model.ResponseStatus(query.Get("status")),
			SurveyID:  query.Get("surveyId"),
			VersionID: query.Get("surveyVersionId"),
		}

		responses, err := survey.ListResponses(r.Context(), app.DB, filter)
		if err != nil {
			writeDomainError(w, r, "list_responses", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"responses": responses,
		})
	}
}
