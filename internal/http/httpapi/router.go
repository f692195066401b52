package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	sentryhttp "github.com/getsentry/sentry-go/http"

	"posemind/internal/http/handlers"
	"posemind/internal/infra/geoip"
	"posemind/internal/metrics"
	"posemind/internal/middleware"
)

// Deps carries the cross-cutting components the router wires in.
type Deps struct {
	Logger  zerolog.Logger
	Metrics *metrics.Collector
	GeoIP   *geoip.Resolver
}

func NewRouter(app *handlers.App, deps Deps) http.Handler {
	r := chi.NewRouter()

	var lookup middleware.CountryLookup
	if deps.GeoIP != nil {
		lookup = deps.GeoIP.CountryCode
	}
	origins := []string{"*"}
	rateLimit := 30
	cookieName := ""
	secure := false
	if app.Config != nil {
		origins = app.Config.CORSAllowedOrigins
		rateLimit = app.Config.RateLimitPerMin
		cookieName = app.Config.SessionCookieName
		secure = app.Config.AppEnv == "production"
	}

	r.Use(
		middleware.RequestID(deps.Logger),
		chimw.RealIP,
		sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle,
		chimw.Recoverer,
		middleware.Logger(deps.Metrics),
		middleware.CORS(origins),
		middleware.I18N(middleware.LocaleZH, lookup, geoip.LocaleForCountry),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Get("/uploads/{filename}", app.ServeUpload)
	r.Get("/results/archive", app.ResultArchive)
	r.Get("/results/{filename}", app.ServeResult)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Session(cookieName, secure))
		r.Get("/usage", app.Usage)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(rateLimit, time.Minute))
			r.Post("/upload", app.Upload)
			r.Post("/generate-poses", app.GeneratePoses)
			r.Post("/plan-poses", app.PlanPoses)
			r.Post("/generate-pose-image", app.GeneratePoseImage)
		})
	})

	return r
}
