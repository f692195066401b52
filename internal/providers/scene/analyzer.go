// Package scene describes an uploaded photograph with a vision-language model.
package scene

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"posemind/internal/imgutil"
	"posemind/internal/metrics"
	"posemind/internal/providers/chat"
)

// Fallback is returned whenever the remote analysis cannot be used.
const Fallback = "户外自然场景"

const maxTokens = 300

const systemPrompt = "你是一名专业摄影顾问。请只描述照片中能够确认的内容，不要猜测，使用简洁、有条理的中文。"

const userPrompt = `请详细分析这张照片的场景和环境，包括：
1. 拍摄地点类型（室内/户外/城市/自然/建筑等）
2. 具体场景描述（咖啡馆/公园/街道/海边/山景/办公室/家中等）
3. 环境氛围（休闲/正式/浪漫/活力/艺术等）
4. 光线特点（自然光/人工光/逆光/柔光等）
5. 适合的拍摄风格建议

请用简洁的语言描述，重点突出场景特征。`

// Completer is the chat transport used for analysis.
type Completer interface {
	Complete(ctx context.Context, req chat.Request) (string, error)
}

// Options configures an Analyzer.
type Options struct {
	Client  Completer
	Budget  int
	Logger  *zerolog.Logger
	Metrics *metrics.Collector
}

// Analyzer turns an image file into a short scene description.
type Analyzer struct {
	client  Completer
	budget  int
	logger  zerolog.Logger
	metrics *metrics.Collector
}

func NewAnalyzer(opts Options) *Analyzer {
	budget := opts.Budget
	if budget <= 0 {
		budget = imgutil.DefaultBudget
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Analyzer{
		client:  opts.Client,
		budget:  budget,
		logger:  logger.With().Str("component", "scene").Logger(),
		metrics: opts.Metrics,
	}
}

// Analyze never fails; any problem yields Fallback.
func (a *Analyzer) Analyze(ctx context.Context, imagePath string) string {
	start := time.Now()
	defer func() { a.metrics.ObserveStage("scene", time.Since(start)) }()

	data := imgutil.CompressFile(imagePath, a.budget)
	if len(data) == 0 {
		return a.useFallback(ctx, "read_image", errors.New("image unreadable"))
	}
	if a.client == nil {
		return a.useFallback(ctx, "missing_client", nil)
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)

	text, err := a.client.Complete(ctx, chat.Request{
		Messages: []chat.Message{
			chat.TextMessage("system", systemPrompt),
			chat.ImageMessage(userPrompt, dataURL),
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return a.useFallback(ctx, chat.Reason(err), err)
	}
	a.logger.Debug().Int("chars", len([]rune(text))).Msg("scene analysis completed")
	return text
}

func (a *Analyzer) useFallback(ctx context.Context, reason string, err error) string {
	logger := a.logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = l.With().Str("component", "scene").Logger()
	}
	logger.Warn().Err(err).Str("reason", reason).Msg("scene analysis fallback")
	a.metrics.Fallback("scene", reason)
	return Fallback
}
