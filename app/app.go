package app

import (
	"database/sql"

	"github.com/go-chi/oauth"

	"github.com/motorline/drive-survey/config"
)

// App bundles the shared dependencies handed to every route constructor.
type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
}
