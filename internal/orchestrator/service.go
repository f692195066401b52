// Package orchestrator runs the upload → scene → poses → illustrations
// pipeline behind the HTTP handlers and the operator CLI.
package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"posemind/internal/domain"
	"posemind/internal/imagegen"
	"posemind/internal/metrics"
	"posemind/internal/usage"
)

type SceneAnalyzer interface {
	Analyze(ctx context.Context, imagePath string) string
}

type PoseSuggester interface {
	Suggest(ctx context.Context, scene string, gender domain.Gender) []domain.PoseSuggestion
}

type Illustrator interface {
	Generate(ctx context.Context, req imagegen.Request) (string, error)
}

// Uploads resolves stored upload filenames.
type Uploads interface {
	Exists(key string) bool
	Path(key string) (string, error)
}

// Quota charges requests against the daily cap. A plan prepays the
// illustrations of its photo; Redeem spends one of those.
type Quota interface {
	Consume(ctx context.Context, session string) (usage.Status, error)
	Status(ctx context.Context, session string) (usage.Status, error)
	Prepay(ctx context.Context, session, item string, n int) error
	Redeem(ctx context.Context, session, item string) (bool, error)
}

// CredentialChecker reports whether a remote client has an API key.
type CredentialChecker interface {
	HasCredentials() bool
}

type Options struct {
	Scene       SceneAnalyzer
	Poses       PoseSuggester
	Illustrator Illustrator
	Uploads     Uploads
	Quota       Quota
	Credentials []CredentialChecker
	Count       int
	Concurrency int
	Logger      *zerolog.Logger
	Metrics     *metrics.Collector
}

type Service struct {
	scene       SceneAnalyzer
	poses       PoseSuggester
	illustrator Illustrator
	uploads     Uploads
	quota       Quota
	credentials []CredentialChecker
	count       int
	concurrency int
	logger      zerolog.Logger
	metrics     *metrics.Collector
}

type GenerateInput struct {
	ImageFilename string
	Gender        domain.Gender
}

type GenerateResult struct {
	Status        string               `json:"status"`
	SceneAnalysis string               `json:"scene_analysis"`
	Gender        string               `json:"gender"`
	PoseVariants  []domain.PoseVariant `json:"pose_variants"`
}

type PlanResult struct {
	Status        string                  `json:"status"`
	SceneAnalysis string                  `json:"scene_analysis"`
	Gender        string                  `json:"gender"`
	Poses         []domain.PoseSuggestion `json:"poses"`
}

type IllustrateInput struct {
	ImageFilename string
	Gender        domain.Gender
	Scene         string
	Pose          domain.PoseSuggestion
	Index         int
}

func NewService(opts Options) *Service {
	count := opts.Count
	if count <= 0 {
		count = 4
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = count
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Service{
		scene:       opts.Scene,
		poses:       opts.Poses,
		illustrator: opts.Illustrator,
		uploads:     opts.Uploads,
		quota:       opts.Quota,
		credentials: opts.Credentials,
		count:       count,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		metrics:     opts.Metrics,
	}
}

// PlanAndGenerate analyzes the upload, proposes poses and illustrates each.
// Poses whose illustration fails are left out of the result.
func (s *Service) PlanAndGenerate(ctx context.Context, session string, in GenerateInput) (*GenerateResult, error) {
	imagePath, err := s.admit(ctx, session, in.ImageFilename)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	logger := s.log(ctx)

	scene := s.scene.Analyze(ctx, imagePath)
	suggestions := s.poses.Suggest(ctx, scene, in.Gender)
	if len(suggestions) > s.count {
		suggestions = suggestions[:s.count]
	}

	slots := make([]string, len(suggestions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, pose := range suggestions {
		i, pose := i, pose
		g.Go(func() error {
			name, err := s.illustrator.Generate(gctx, imagegen.Request{
				SourceImage: imagePath,
				Pose:        pose,
				Scene:       scene,
				Gender:      in.Gender,
				Index:       i + 1,
			})
			if err != nil {
				logger.Warn().Err(err).Int("pose_index", i+1).Str("pose", pose.Name).Msg("pose omitted")
				return nil
			}
			slots[i] = name
			return nil
		})
	}
	_ = g.Wait()

	variants := make([]domain.PoseVariant, 0, len(suggestions))
	for i, pose := range suggestions {
		if slots[i] != "" {
			variants = append(variants, domain.NewPoseVariant(pose, slots[i]))
		}
	}
	logger.Info().
		Int("requested", len(suggestions)).
		Int("generated", len(variants)).
		Msg("pose generation finished")

	return &GenerateResult{
		Status:        "success",
		SceneAnalysis: scene,
		Gender:        in.Gender.Label(),
		PoseVariants:  variants,
	}, nil
}

// Plan returns the scene description and pose suggestions without images.
func (s *Service) Plan(ctx context.Context, session string, in GenerateInput) (*PlanResult, error) {
	imagePath, err := s.admit(ctx, session, in.ImageFilename)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	scene := s.scene.Analyze(ctx, imagePath)
	suggestions := s.poses.Suggest(ctx, scene, in.Gender)
	if len(suggestions) > s.count {
		suggestions = suggestions[:s.count]
	}
	if err := s.quota.Prepay(ctx, session, strings.TrimSpace(in.ImageFilename), len(suggestions)); err != nil {
		s.log(ctx).Warn().Err(err).Msg("prepaying illustrations failed; they will be charged individually")
	}
	return &PlanResult{
		Status:        "success",
		SceneAnalysis: scene,
		Gender:        in.Gender.Label(),
		Poses:         suggestions,
	}, nil
}

// Illustrate renders one pose on demand.
func (s *Service) Illustrate(ctx context.Context, session string, in IllustrateInput) (*domain.PoseVariant, error) {
	if strings.TrimSpace(in.ImageFilename) == "" {
		return nil, domain.ErrMissingImage
	}
	if strings.TrimSpace(in.Pose.Description) == "" {
		return nil, domain.ErrMissingDescription
	}
	imagePath, err := s.check(in.ImageFilename)
	if err != nil {
		return nil, err
	}
	prepaid, err := s.quota.Redeem(ctx, session, strings.TrimSpace(in.ImageFilename))
	if err != nil {
		s.log(ctx).Warn().Err(err).Msg("redeeming prepaid illustration failed")
	}
	if !prepaid {
		if err := s.charge(ctx, session); err != nil {
			return nil, err
		}
	}
	ctx = context.WithoutCancel(ctx)
	index := in.Index
	if index <= 0 {
		index = 1
	}
	name, err := s.illustrator.Generate(ctx, imagegen.Request{
		SourceImage: imagePath,
		Pose:        in.Pose,
		Scene:       in.Scene,
		Gender:      in.Gender,
		Index:       index,
	})
	if err != nil {
		s.log(ctx).Warn().Err(err).Int("pose_index", index).Msg("on-demand illustration failed")
		return nil, domain.ErrIllustrationFailed
	}
	variant := domain.NewPoseVariant(in.Pose, name)
	return &variant, nil
}

// Usage reports the remaining daily quota without charging.
func (s *Service) Usage(ctx context.Context, session string) (usage.Status, error) {
	return s.quota.Status(ctx, session)
}

// admit runs the precondition checks in order and charges one quota unit.
func (s *Service) admit(ctx context.Context, session, filename string) (string, error) {
	imagePath, err := s.check(filename)
	if err != nil {
		return "", err
	}
	if err := s.charge(ctx, session); err != nil {
		return "", err
	}
	return imagePath, nil
}

// check validates the filename, credentials and stored upload without
// touching the quota.
func (s *Service) check(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", domain.ErrMissingImage
	}
	for _, c := range s.credentials {
		if c == nil || !c.HasCredentials() {
			return "", domain.ErrMissingCredentials
		}
	}
	if !s.uploads.Exists(filename) {
		return "", domain.ErrImageNotFound
	}
	imagePath, err := s.uploads.Path(filename)
	if err != nil {
		return "", domain.ErrImageNotFound
	}
	return imagePath, nil
}

func (s *Service) charge(ctx context.Context, session string) error {
	status, err := s.quota.Consume(ctx, session)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			s.metrics.QuotaDenied()
			s.log(ctx).Info().Int("used", status.Used).Int("limit", status.Limit).Msg("daily quota exceeded")
		}
		return err
	}
	return nil
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		child := l.With().Str("component", "orchestrator").Logger()
		return &child
	}
	return &s.logger
}
