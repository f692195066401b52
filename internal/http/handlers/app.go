package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"posemind/internal/domain"
	"posemind/internal/infra"
	"posemind/internal/middleware"
	"posemind/internal/orchestrator"
	"posemind/internal/storage"
	"posemind/internal/usage"
)

// PoseService is the pipeline behind the pose endpoints.
type PoseService interface {
	PlanAndGenerate(ctx context.Context, session string, in orchestrator.GenerateInput) (*orchestrator.GenerateResult, error)
	Plan(ctx context.Context, session string, in orchestrator.GenerateInput) (*orchestrator.PlanResult, error)
	Illustrate(ctx context.Context, session string, in orchestrator.IllustrateInput) (*domain.PoseVariant, error)
	Usage(ctx context.Context, session string) (usage.Status, error)
}

type App struct {
	Config   *infra.Config
	Logger   zerolog.Logger
	Service  PoseService
	Uploads  *storage.FileStore
	Results  *storage.FileStore
	Validate *validator.Validate
}

func NewApp(cfg *infra.Config, logger zerolog.Logger, svc PoseService, uploads, results *storage.FileStore) *App {
	return &App{
		Config:   cfg,
		Logger:   logger,
		Service:  svc,
		Uploads:  uploads,
		Results:  results,
		Validate: validator.New(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// error writes {"error": message} using the request locale.
func (a *App) error(w http.ResponseWriter, r *http.Request, code int, key messageKey) {
	a.json(w, code, map[string]string{"error": message(middleware.LocaleFromContext(r.Context()), key)})
}

// fail maps a service error to its status code and message. Unexpected
// errors are logged and reported to Sentry.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, key := classify(err)
	if code >= http.StatusInternalServerError && key == msgGenerateFailed {
		a.log(r).Error().Err(err).Msg("request failed")
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
	}
	a.error(w, r, code, key)
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		a.error(w, r, http.StatusBadRequest, msgInvalidPayload)
		return false
	}
	if err := a.Validate.Struct(dst); err != nil {
		a.log(r).Debug().Err(err).Msg("request validation failed")
		a.error(w, r, http.StatusBadRequest, msgInvalidPayload)
		return false
	}
	return true
}
