// Package imagegen renders pose illustrations through the asynchronous
// image-generation API and stores them with composition guides drawn on top.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"posemind/internal/domain"
	"posemind/internal/imgutil"
	"posemind/internal/metrics"
	"posemind/internal/providers/qwen"
)

var (
	ErrNoTaskID      = errors.New("imagegen: submit response carried no task id")
	ErrTaskFailed    = errors.New("imagegen: task failed")
	ErrNoOutputImage = errors.New("imagegen: task succeeded without output images")
	ErrTimeout       = errors.New("imagegen: timed out waiting for task")
)

const (
	DefaultTimeout  = 150 * time.Second
	DefaultInterval = 5 * time.Second
	resultQuality   = 90
)

// TaskClient is the remote async image API.
type TaskClient interface {
	SubmitTask(ctx context.Context, prompt string) (string, error)
	FetchTask(ctx context.Context, taskID string) (*qwen.Task, error)
	Download(ctx context.Context, imageURL string) ([]byte, string, error)
}

// Store persists finished illustrations.
type Store interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

type Options struct {
	Client   TaskClient
	Store    Store
	Timeout  time.Duration
	Interval time.Duration
	Guides   imgutil.GuideOptions
	Logger   *zerolog.Logger
	Metrics  *metrics.Collector
	Now      func() time.Time
}

// Request describes one pose to illustrate. Index starts at 1.
type Request struct {
	SourceImage string
	Pose        domain.PoseSuggestion
	Scene       string
	Gender      domain.Gender
	Index       int
}

type Generator struct {
	client   TaskClient
	store    Store
	timeout  time.Duration
	interval time.Duration
	guides   imgutil.GuideOptions
	logger   zerolog.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

func NewGenerator(opts Options) *Generator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	guides := opts.Guides
	if guides.Style == "" {
		guides = imgutil.GuideOptions{Style: imgutil.GuideRuleOfThirds, Color: imgutil.PoseGuideColor, Width: 2}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Generator{
		client:   opts.Client,
		store:    opts.Store,
		timeout:  timeout,
		interval: interval,
		guides:   guides,
		logger:   logger.With().Str("component", "imagegen").Logger(),
		metrics:  opts.Metrics,
		now:      now,
	}
}

// Attempts is the poll budget: ceil(timeout / interval).
func (g *Generator) Attempts() int {
	n := int(g.timeout / g.interval)
	if g.timeout%g.interval != 0 {
		n++
	}
	return n
}

// Generate submits, polls and post-processes one illustration and returns
// the stored result filename.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	start := g.now()
	logger := g.logger.With().Int("pose_index", req.Index).Logger()

	filename, outcome, err := g.generate(ctx, req, &logger)
	g.metrics.Illustration(outcome)
	g.metrics.ObserveStage("illustration", g.now().Sub(start))
	if err != nil {
		logger.Warn().Err(err).Str("outcome", outcome).Msg("pose illustration failed")
		return "", err
	}
	logger.Info().Str("file", filename).Dur("elapsed", g.now().Sub(start)).Msg("pose illustration stored")
	return filename, nil
}

func (g *Generator) generate(ctx context.Context, req Request, logger *zerolog.Logger) (string, string, error) {
	prompt := BuildPrompt(req.Gender, req.Pose.Description)
	taskID, err := g.client.SubmitTask(ctx, prompt)
	if err != nil {
		return "", "submit_error", fmt.Errorf("imagegen: submit: %w", err)
	}
	if taskID == "" {
		return "", "no_task_id", ErrNoTaskID
	}
	*logger = logger.With().Str("task_id", taskID).Logger()
	logger.Debug().Msg("illustration task submitted")

	imageURL, outcome, err := g.poll(ctx, taskID, logger)
	if err != nil {
		return "", outcome, err
	}

	data, _, err := g.client.Download(ctx, imageURL)
	if err != nil {
		return "", "download_error", fmt.Errorf("imagegen: download: %w", err)
	}
	filename, err := g.finish(ctx, data, req.Index)
	if err != nil {
		return "", "postprocess_error", err
	}
	return filename, "succeeded", nil
}

func (g *Generator) poll(ctx context.Context, taskID string, logger *zerolog.Logger) (string, string, error) {
	timer := time.NewTimer(g.interval)
	defer timer.Stop()

	attempts := g.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer.Reset(g.interval)
		}
		select {
		case <-ctx.Done():
			return "", "canceled", ctx.Err()
		case <-timer.C:
		}

		task, err := g.client.FetchTask(ctx, taskID)
		if err != nil {
			return "", "poll_error", fmt.Errorf("imagegen: poll: %w", err)
		}
		switch task.Status {
		case qwen.StatusSucceed:
			for _, u := range task.OutputImages {
				if u = strings.TrimSpace(u); u != "" {
					return u, "", nil
				}
			}
			return "", "no_output", ErrNoOutputImage
		case qwen.StatusFailed:
			msg := task.Error
			if msg == "" {
				msg = "unknown error"
			}
			return "", "failed", fmt.Errorf("%w: %s", ErrTaskFailed, msg)
		case qwen.StatusPending, qwen.StatusRunning:
			logger.Debug().Int("attempt", attempt).Str("status", task.Status).Msg("illustration task in progress")
		default:
			logger.Warn().Int("attempt", attempt).Str("status", task.Status).Msg("unexpected task status")
		}
	}
	return "", "timeout", fmt.Errorf("%w after %d attempts", ErrTimeout, attempts)
}

func (g *Generator) finish(ctx context.Context, data []byte, index int) (string, error) {
	img, _, err := imgutil.Decode(data)
	if err != nil {
		return "", fmt.Errorf("imagegen: decode result: %w", err)
	}
	overlaid := imgutil.Flatten(imgutil.OverlayGuides(img, g.guides), color.White)
	encoded, err := imgutil.EncodeJPEG(overlaid, resultQuality)
	if err != nil {
		return "", fmt.Errorf("imagegen: encode result: %w", err)
	}
	name := fmt.Sprintf("pose_variant_%d_%d_%s.jpg", index, g.now().Unix(), uuid.NewString()[:8])
	key, err := g.store.Write(ctx, name, encoded)
	if err != nil {
		return "", fmt.Errorf("imagegen: store result: %w", err)
	}
	return key, nil
}
