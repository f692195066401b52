// Package pose asks the chat model for photography poses that fit a scene.
package pose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"posemind/internal/domain"
	"posemind/internal/metrics"
	"posemind/internal/providers/chat"
)

const maxTokens = 1000

// DefaultCount is the number of poses requested when Options.Count is unset.
const DefaultCount = 4

// Completer is the chat transport used for suggestions.
type Completer interface {
	Complete(ctx context.Context, req chat.Request) (string, error)
}

// Options configures a Suggester.
type Options struct {
	Client  Completer
	Count   int
	Logger  *zerolog.Logger
	Metrics *metrics.Collector
}

// Suggester produces exactly Count pose suggestions, falling back to a
// built-in table when the model is unavailable or returns garbage.
type Suggester struct {
	client   Completer
	count    int
	logger   zerolog.Logger
	metrics  *metrics.Collector
	validate *validator.Validate
}

type defaultPose struct {
	name, description, category string
}

var defaultPoses = []defaultPose{
	{"自然站姿", "自然站立，一手插袋或垂放，微笑看向镜头", "经典"},
	{"轻松坐姿", "随意坐下，双手自然放置，表情放松", "坐姿"},
	{"侧身回望", "侧身站立，回头看向镜头，展现优雅线条", "经典"},
	{"自由漫步", "自然行走，捕捉动态瞬间", "动态"},
}

func NewSuggester(opts Options) *Suggester {
	count := opts.Count
	if count <= 0 {
		count = DefaultCount
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Suggester{
		client:   opts.Client,
		count:    count,
		logger:   logger.With().Str("component", "pose").Logger(),
		metrics:  opts.Metrics,
		validate: validator.New(),
	}
}

// Count reports how many suggestions Suggest returns.
func (s *Suggester) Count() int {
	return s.count
}

// Suggest never fails and never returns an empty slice.
func (s *Suggester) Suggest(ctx context.Context, scene string, gender domain.Gender) []domain.PoseSuggestion {
	start := time.Now()
	defer func() { s.metrics.ObserveStage("pose", time.Since(start)) }()

	label := gender.Label()
	if s.client == nil {
		return s.useFallback(ctx, label, "missing_client", nil)
	}
	text, err := s.client.Complete(ctx, chat.Request{
		Messages: []chat.Message{
			chat.TextMessage("system", systemPrompt),
			chat.TextMessage("user", buildUserPrompt(scene, label, s.count)),
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return s.useFallback(ctx, label, chat.Reason(err), err)
	}
	parsed, err := parseSuggestions(text)
	if err != nil {
		return s.useFallback(ctx, label, "parse_payload", err)
	}

	out := make([]domain.PoseSuggestion, 0, s.count)
	for _, p := range parsed {
		p.Name = strings.TrimSpace(p.Name)
		p.Description = strings.TrimSpace(p.Description)
		p.Category = strings.TrimSpace(p.Category)
		if err := s.validate.Struct(p); err != nil {
			s.logger.Debug().Err(err).Str("name", p.Name).Msg("dropping invalid pose suggestion")
			continue
		}
		p.Name = withLabel(p.Name, label)
		out = append(out, p)
		if len(out) == s.count {
			break
		}
	}
	if len(out) == 0 {
		return s.useFallback(ctx, label, "empty_result", errors.New("no usable suggestions"))
	}
	if len(out) < s.count {
		s.logger.Info().Int("got", len(out)).Int("want", s.count).Msg("topping up pose suggestions from defaults")
		out = topUp(out, label, s.count)
	}
	return out
}

func (s *Suggester) useFallback(ctx context.Context, label, reason string, err error) []domain.PoseSuggestion {
	logger := s.logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = l.With().Str("component", "pose").Logger()
	}
	logger.Warn().Err(err).Str("reason", reason).Msg("pose suggestion fallback")
	s.metrics.Fallback("pose", reason)
	return Defaults(label, s.count)
}

// Defaults returns the built-in poses tagged with label, truncated to n.
func Defaults(label string, n int) []domain.PoseSuggestion {
	if n > len(defaultPoses) {
		n = len(defaultPoses)
	}
	out := make([]domain.PoseSuggestion, 0, n)
	for _, d := range defaultPoses[:n] {
		out = append(out, domain.PoseSuggestion{
			Name:        withLabel(d.name, label),
			Description: d.description,
			Category:    d.category,
		})
	}
	return out
}

func topUp(list []domain.PoseSuggestion, label string, n int) []domain.PoseSuggestion {
	seen := make(map[string]struct{}, len(list))
	for _, p := range list {
		seen[p.Name] = struct{}{}
	}
	for _, d := range Defaults(label, len(defaultPoses)) {
		if len(list) >= n {
			break
		}
		if _, ok := seen[d.Name]; ok {
			continue
		}
		list = append(list, d)
	}
	return list
}

// withLabel returns name carrying label exactly once. Repeated labels are
// stripped and a single one is appended.
func withLabel(name, label string) string {
	switch strings.Count(name, label) {
	case 0:
	case 1:
		return name
	default:
		name = strings.ReplaceAll(name, label, " ")
		name = strings.Join(strings.Fields(name), " ")
		name = strings.Trim(name, " ·-_")
		if name == "" {
			return label
		}
	}
	return fmt.Sprintf("%s · %s", name, label)
}

func parseSuggestions(raw string) ([]domain.PoseSuggestion, error) {
	text := firstFencedBlock(raw)
	if text == "" {
		return nil, errors.New("empty payload")
	}
	var out []domain.PoseSuggestion
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// firstFencedBlock returns the body of the first markdown code fence, with
// an optional json tag removed. Text without fences is returned trimmed.
func firstFencedBlock(raw string) string {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	body := text[start+3:]
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
