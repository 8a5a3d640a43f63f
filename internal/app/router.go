package app

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/yevea-countertop/internal/cart"
	"github.com/noah-isme/yevea-countertop/internal/checkout"
	"github.com/noah-isme/yevea-countertop/internal/common"
	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/health"
	"github.com/noah-isme/yevea-countertop/internal/obs"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
	"github.com/noah-isme/yevea-countertop/internal/ratelimit"
	"github.com/noah-isme/yevea-countertop/internal/security"
	"github.com/noah-isme/yevea-countertop/internal/session"
	"github.com/noah-isme/yevea-countertop/internal/storefront"
)

// Router builds the HTTP handler for the JSON API, the form flow and the
// operational endpoints.
func (a *App) Router() http.Handler {
	cfg := a.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.Obs.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)}.Middleware)
	}
	r.Use(obs.SessionSlotMiddleware)
	r.Use(obs.RequestLogger{Logger: a.Logger}.Middleware)
	r.Use(security.Headers{
		Enable:                cfg.Security.HeadersEnabled,
		EnableHSTS:            cfg.Security.HSTSEnabled,
		HSTSMaxAge:            cfg.Security.HSTSMaxAge,
		HSTSIncludeSubdomains: cfg.Security.HSTSIncludeSubdomains,
		ContentSecurityPolicy: cfg.Security.ContentSecurityPolicy,
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	probes := map[string]health.Probe{}
	if a.Redis != nil {
		probes["redis"] = health.RedisProbe(a.Redis)
	}
	if a.DB != nil {
		probes["postgres"] = health.PostgresProbe(a.DB)
	}
	healthHandler := health.Handler{Probes: probes, Timeout: cfg.Obs.HealthTimeout}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	sessions := &session.Manager{
		Secret:     []byte(cfg.SessionSecret),
		TTL:        cfg.SessionTTL,
		CookieName: cfg.SessionCookieName,
		Domain:     cfg.CookieDomain,
		Secure:     cfg.CookieSecure,
		SameSite:   cfg.CookieSameSite,
		Logger:     a.Logger,
	}
	checkoutLimit := ratelimit.Handler{
		Limiter: a.Limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.SessionKey("checkout"),
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitCheckoutMax,
		},
		OnError: func(err error) { a.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	quoteHandler := &pricing.Handler{Calc: a.Calc}
	configHandler := &configurator.Handler{Repo: a.Configs}
	cartHandler := &cart.Handler{
		Store:    a.Carts,
		Calc:     a.Calc,
		Namer:    a.Namer,
		Config:   a.Configs,
		Currency: cfg.CurrencyCode,
	}
	checkoutHandler := &checkout.Handler{Orchestrator: a.Checkout, Carts: a.Carts}
	storefrontHandler := &storefront.Handler{
		Calc:     a.Calc,
		Namer:    a.Namer,
		Carts:    a.Carts,
		Config:   a.Configs,
		Checkout: a.Checkout,
		Currency: cfg.CurrencyCode,
		Logger:   a.Logger.With().Str("component", "storefront").Logger(),
	}

	r.Group(func(s chi.Router) {
		s.Use(sessions.Middleware)

		s.Route("/api/v1", func(v chi.Router) {
			if origins := cfg.CORSAllowedOrigins; len(origins) > 0 {
				v.Use(cors.Handler(cors.Options{
					AllowedOrigins:   origins,
					AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
					AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
					ExposedHeaders:   []string{"X-CSRF-Token", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
					AllowCredentials: !slices.Contains(origins, "*"),
					MaxAge:           300,
				}))
			}
			v.Post("/quote", quoteHandler.Quote)

			v.Group(func(p chi.Router) {
				p.Use(security.CSRF{Secure: cfg.CookieSecure, SameSite: cfg.CookieSameSite, ExposeToken: true}.Middleware)
				p.Get("/configuration", configHandler.Get)
				p.Patch("/configuration", configHandler.Update)
				p.Get("/cart", cartHandler.Get)
				p.Post("/cart/items", cartHandler.AddItem)
				p.Delete("/cart/items/{id}", cartHandler.RemoveItem)
				p.Get("/checkout", checkoutHandler.Status)

				guarded := []func(http.Handler) http.Handler{checkoutLimit.Middleware}
				if a.Redis != nil {
					guarded = append(guarded, common.Idem{R: a.Redis, TTL: cfg.IdempotencyTTL}.Middleware)
				}
				p.With(guarded...).Post("/checkout", checkoutHandler.Checkout)
			})
		})

		s.Group(func(f chi.Router) {
			f.Use(security.CSRF{Secure: cfg.CookieSecure, SameSite: cfg.CookieSameSite}.Middleware)
			f.Get("/", storefrontHandler.Show)
			f.Post("/", limitAction(storefront.ActionCheckout, checkoutLimit.Middleware, storefrontHandler.Submit))
		})
	})
	return r
}

// limitAction routes form posts carrying action through mw and every other
// post straight to next.
func limitAction(action string, mw func(http.Handler) http.Handler, next http.HandlerFunc) http.HandlerFunc {
	limited := mw(next)
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.PostFormValue("action")) == action {
			limited.ServeHTTP(w, r)
			return
		}
		next(w, r)
	}
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
