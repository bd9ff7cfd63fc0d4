// Package adminapi is the thin REST/JSON HTTP surface described in
// spec.md §6: lab CRUD scoped to the authenticated caller, plus
// operator-only runtime diagnostics. It owns no business logic beyond
// request decoding, auth/admin gating, and status-code mapping -
// everything else is delegated to labsvc and runtime.
package adminapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"octolab/internal/auth"
	"octolab/internal/enum"
	"octolab/internal/labsvc"
	"octolab/internal/runtime"
)

// API wires labsvc and the runtime selector into HTTP handlers.
type API struct {
	labs           *labsvc.Service
	selector       *runtime.Selector
	runtimeCfg     map[string]interface{}
	defaultRuntime enum.RuntimeType
	authenticator  auth.Authenticator
	admins         *auth.AdminAllowlist
	corsOrigins    []string
}

// Config bundles API's dependencies.
type Config struct {
	Labs           *labsvc.Service
	Selector       *runtime.Selector
	RuntimeCfg     map[string]interface{}
	DefaultRuntime enum.RuntimeType
	Authenticator  auth.Authenticator
	Admins         *auth.AdminAllowlist
	CORSOrigins    []string
}

// New builds an API from Config.
func New(cfg Config) *API {
	return &API{
		labs:           cfg.Labs,
		selector:       cfg.Selector,
		runtimeCfg:     cfg.RuntimeCfg,
		defaultRuntime: cfg.DefaultRuntime,
		authenticator:  cfg.Authenticator,
		admins:         cfg.Admins,
		corsOrigins:    cfg.CORSOrigins,
	}
}

// Router assembles the chi router, mirroring the control plane's own
// middleware stack (Logger/Recoverer/RequestID/RealIP/Compress/CORS)
// and adding a request-rate limiter on the admin routes.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.WithAuthenticated(a.authenticator))

		r.Post("/labs", a.createLab)
		r.Get("/labs", a.listLabs)
		r.Get("/labs/{id}", a.getLab)
		r.Delete("/labs/{id}", a.terminateLab)
		r.Post("/labs/{id}/connect", a.connectLab)

		r.Route("/admin", func(r chi.Router) {
			r.Use(httprate.LimitByIP(30, time.Minute))
			r.Use(auth.RequireAdmin(a.admins))

			r.Get("/microvm/doctor", a.doctor)
			r.Post("/microvm/smoke", a.smoke)
			r.Get("/runtime", a.getRuntime)
			r.Post("/runtime", a.setRuntime)
		})
	})

	return r
}
