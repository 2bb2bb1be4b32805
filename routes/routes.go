package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/motorline/drive-survey/app"
	"github.com/motorline/drive-survey/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// public: fill in a survey
	api.Get("/surveys/current", CurrentVersionForBrand(app))
	api.Post("/responses", StartResponse(app))
	api.Get("/responses/{id}", GetResponse(app))
	api.Post("/responses/{id}/answers", SubmitAnswers(app))

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// CRUD survey
		r.Post("/surveys", CreateSurvey(app))
		r.Get("/surveys", ListSurveys(app))
		r.Get("/surveys/{id}", GetSurveyById(app))
		r.Put("/surveys/{id}", UpdateSurvey(app))
		r.Delete("/surveys/{id}", DeleteSurvey(app))

		// versions and questions
		r.Post("/surveys/{id}/versions", CreateVersion(app))
		r.Get("/surveys/{id}/versions", ListVersions(app))
		r.Get("/surveys/{id}/versions/current", GetCurrentVersion(app))
		r.Get("/versions/{id}", GetFullVersion(app))
		r.Post("/versions/{id}/questions", AddQuestion(app))

		// responses
		r.Get("/responses", ListResponses(app))

		// test drive forms + automation hook
		r.Post("/forms", CreateForm(app))
		r.Get("/forms", ListForms(app))
		r.Get("/forms/{id}", GetFormById(app))
		r.Post("/forms/{id}/survey-response", EnsureFormResponse(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}
