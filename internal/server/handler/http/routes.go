// Package http provides HTTP routing and middleware configuration
// for the glue service.
package http

import (
	"net/http"

	"github.com/atinyakov/smsglue/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler of the glue service.
//
// Routes:
//
//	POST     /enable                      → glue.Enable
//	GET      /provision/{id}              → glue.Provision
//	GET|POST /notify/{id}                 → glue.Notify
//	GET      /report/{id}/{device}/{app}  → glue.Report
//	POST     /fetch/{token}               → glue.Fetch (TokenAuth)
//	POST     /send/{token}                → glue.Send (TokenAuth)
//	GET      /fetch/{token}[/{last_sms}]  → glue.FetchPath (TokenAuth)
//	GET      /send/{token}/{dst}/{msg}    → glue.SendPath (TokenAuth)
//	GET      /                            → index.Index
//
// Any other path redirects to /.
func NewRouter(
	glue *GlueHandler,
	index *IndexHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	// Providers post forms, softphones post JSON.
	r.Use(chiMiddleware.AllowContentType("application/json", "application/x-www-form-urlencoded"))

	r.Get("/", index.Index)
	r.Post("/enable", glue.Enable)
	r.Get("/provision/{id}", glue.Provision)
	r.Get("/notify/{id}", glue.Notify)
	r.Post("/notify/{id}", glue.Notify)
	r.Get("/report/{id}/{device}/{app}", glue.Report)

	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(glue.Service))
		r.Post("/fetch/{"+middleware.TokenParam+"}", glue.Fetch)
		r.Post("/send/{"+middleware.TokenParam+"}", glue.Send)
		r.Get("/fetch/{"+middleware.TokenParam+"}", glue.FetchPath)
		r.Get("/fetch/{"+middleware.TokenParam+"}/{last_sms}", glue.FetchPath)
		r.Get("/send/{"+middleware.TokenParam+"}/{dst}/{msg}", glue.SendPath)
	})

	r.NotFound(index.Redirect)
	r.MethodNotAllowed(index.Redirect)

	return r
}
