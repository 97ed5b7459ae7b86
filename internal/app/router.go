package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	"github.com/keihi-platform/api/api"
	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/config"
	"github.com/keihi-platform/api/internal/handlers"
	"github.com/keihi-platform/api/internal/httpx"
	"github.com/keihi-platform/api/internal/identity"
	"github.com/keihi-platform/api/internal/importer"
	"github.com/keihi-platform/api/internal/middleware"
	"github.com/keihi-platform/api/internal/session"
	"github.com/keihi-platform/api/internal/store"
)

type Deps struct {
	Store    store.Store
	Paths    store.Paths
	Identity identity.Provider
}

func loadSpec() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(api.Spec)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	return doc, nil
}

func NewRouter(cfg config.Config, deps Deps, logger *slog.Logger) (http.Handler, error) {
	doc, err := loadSpec()
	if err != nil {
		return nil, err
	}

	auditLogger := audit.NewLogger(deps.Store, deps.Paths)
	im := importer.New(deps.Store, deps.Paths, auditLogger, logger, importer.WithMaxRows(cfg.ImportMaxRows))
	h := handlers.NewServer(cfg, deps.Store, deps.Paths, deps.Identity, auditLogger, im, logger)
	resolver := session.NewResolver(deps.Identity, cfg.SessionCookieName, logger)
	requireAuth := middleware.RequireAuth(resolver)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.CheckOrigin(cfg.OriginCheck, cfg.CORSAllowedOrigins))
	r.Use(middleware.LimitBody(cfg.APIMaxBodyBytes, middleware.BodyLimit{
		PathPrefix: "/masters/import",
		MaxBytes:   cfg.ImportMaxFileBytes,
	}))

	apiRouter := chi.NewRouter()

	// Multipart upload: validated by the handler, not the JSON schema.
	apiRouter.With(requireAuth, middleware.RequireOperation(session.OpImportMasters)).
		Post("/masters/import", h.PostMastersImport)

	apiRouter.Group(func(jsonRoutes chi.Router) {
		jsonRoutes.Use(openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
			SilenceServersWarning: true,
			Options: openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
			ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
				httpx.WriteJSON(w, statusCode, httpx.ErrorEnvelope{
					Error: httpx.ErrorBody{
						Code:    "validation_error",
						Message: httpx.MsgInvalidInput,
						Details: message,
					},
					RequestID: w.Header().Get(middleware.HeaderRequestID),
				})
			},
		}))

		jsonRoutes.Group(func(public chi.Router) {
			public.Get("/health", h.GetHealth)
			public.Post("/auth/logout", h.PostAuthLogout)
			if h.SupportsPasswordLogin() {
				limiter := middleware.NewIPRateLimiterWithMaxEntries(10, time.Minute, cfg.RateLimitMaxIPs)
				public.With(limiter.Middleware("ログイン試行回数が多すぎます。しばらくしてから再度お試しください")).
					Post("/auth/login", h.PostAuthLogin)
			}
			registrationLimiter := middleware.NewIPRateLimiterWithMaxEntries(5, time.Minute, cfg.RateLimitMaxIPs)
			public.With(registrationLimiter.Middleware("")).
				Post("/registration/company", h.PostRegistrationCompany)
		})

		jsonRoutes.Group(func(protected chi.Router) {
			protected.Use(requireAuth)
			protected.Get("/auth/me", h.GetAuthMe)

			protected.With(middleware.RequireOperation(session.OpReadMasters)).Get("/masters", h.GetMasters)
			protected.With(middleware.RequireOperation(session.OpManageCategories)).Post("/masters/categories", h.PostMastersCategories)

			protected.Group(func(export chi.Router) {
				export.Use(middleware.RequireOperation(session.OpExport))
				export.Get("/export/profiles", h.GetExportProfiles)
				export.Post("/export/profiles", h.PostExportProfiles)
				export.Get("/export/jobs", h.GetExportJobs)
				export.Post("/export/jobs", h.PostExportJobs)
			})

			protected.With(middleware.RequireOperation(session.OpManageUsers)).Post("/registration/user", h.PostRegistrationUser)
			protected.With(middleware.RequireOperation(session.OpManageUsers)).Get("/users", h.GetUsers)
			// Self-edit guards answer 400 before the admin check in the handler.
			protected.Put("/users", h.PutUsers)
		})
	})

	r.Mount("/api", apiRouter)
	return r, nil
}
