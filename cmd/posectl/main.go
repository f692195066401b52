package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"posemind/internal/bootstrap"
	"posemind/internal/domain"
	"posemind/internal/imgutil"
	"posemind/internal/infra"
	"posemind/internal/metrics"
	"posemind/internal/orchestrator"
	"posemind/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "posectl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		imageFlag   string
		genderFlag  string
		sessionFlag string
		planOnly    bool
		usageOnly   bool
	)
	flag.StringVar(&imageFlag, "image", "", "Path to a scene photo (png, jpg, jpeg, gif, webp)")
	flag.StringVar(&genderFlag, "gender", string(domain.GenderFemale), "Subject gender: female or male")
	flag.StringVar(&sessionFlag, "session", "", "Session id charged against the daily quota (random when empty)")
	flag.BoolVar(&planOnly, "plan", false, "Only analyze the scene and suggest poses, skip illustrations")
	flag.BoolVar(&usageOnly, "usage", false, "Print the session's quota status and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := infra.NewLogger("cli", cfg.LogLevel).With().Str("cmd", "posectl").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, logger, metrics.NewCollector())
	if err != nil {
		return fmt.Errorf("failed to wire pipeline: %w", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn().Err(err).Msg("close resources")
		}
	}()

	session := strings.TrimSpace(sessionFlag)
	if session == "" {
		session = uuid.NewString()
	}

	if usageOnly {
		st, err := components.Service.Usage(ctx, session)
		if err != nil {
			return fmt.Errorf("usage lookup failed: %w", err)
		}
		return printJSON(st)
	}

	if strings.TrimSpace(imageFlag) == "" {
		return errors.New("-image is required")
	}
	filename, err := importImage(ctx, components.Uploads, imageFlag)
	if err != nil {
		return fmt.Errorf("failed to import image: %w", err)
	}
	logger.Info().Str("file", filename).Str("session", session).Msg("image imported")

	in := orchestrator.GenerateInput{ImageFilename: filename, Gender: domain.ParseGender(genderFlag)}
	if planOnly {
		res, err := components.Service.Plan(ctx, session, in)
		if err != nil {
			return fmt.Errorf("plan failed: %w", err)
		}
		return printJSON(res)
	}
	res, err := components.Service.PlanAndGenerate(ctx, session, in)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	return printJSON(res)
}

// importImage validates a local photo and copies it into the upload store
// under the same naming scheme as the upload endpoint.
func importImage(ctx context.Context, uploads *storage.FileStore, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
	default:
		return "", domain.ErrUnsupportedFormat
	}
	if _, _, err := imgutil.Decode(data); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	name := fmt.Sprintf("%d_%s", time.Now().Unix(), storage.SanitizeFilename(path))
	return uploads.Write(ctx, name, data)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
