package tokens

import (
	"encoding/json"
	"strings"
	"sync"

	"kirohq/gateway/pkg/proxy/types"
)

// Counter counts tokens in text. Implementations may use different
// algorithms (character-based, BPE, tiktoken-style).
type Counter interface {
	// CountText counts tokens for a single text string.
	CountText(text string, model string) int
}

// Config holds estimator settings.
type Config struct {
	// Models maps model-name prefixes to characters-per-token ratios.
	Models map[string]float64

	// Correction is applied to payload-level estimates. Serializing the
	// full upstream payload counts JSON structure (keys, brackets, quotes)
	// that the upstream does not bill, overestimating by roughly 5-18%.
	Correction float64
}

// DefaultConfig returns estimator defaults tuned for Claude-family models.
func DefaultConfig() Config {
	return Config{
		Models: map[string]float64{
			"claude":  3.5,
			"default": 4.0,
		},
		Correction: 0.95,
	}
}

// CharEstimator implements character-based token counting with
// model-specific ratios. It is fast and within a few percent for most
// requests.
type CharEstimator struct {
	mu     sync.RWMutex
	config Config
}

// NewCharEstimator creates an estimator from cfg; zero-value fields fall
// back to defaults.
func NewCharEstimator(cfg Config) *CharEstimator {
	def := DefaultConfig()
	if cfg.Models == nil {
		cfg.Models = def.Models
	}
	if cfg.Correction <= 0 {
		cfg.Correction = def.Correction
	}
	return &CharEstimator{config: cfg}
}

// CountText counts tokens for a single text string.
func (e *CharEstimator) CountText(text string, model string) int {
	if text == "" {
		return 0
	}
	charsPerToken := e.charsPerToken(model)
	tokens := float64(len(text)) / charsPerToken
	if tokens < 1.0 {
		tokens = 1.0
	}
	return int(tokens + 0.5)
}

// EstimatePayload estimates the input tokens of an upstream request by
// serializing the payload that will actually be sent and applying the
// configured correction factor.
func (e *CharEstimator) EstimatePayload(payload *types.AssistantRequest, model string) int {
	if payload == nil {
		return 0
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	e.mu.RLock()
	correction := e.config.Correction
	e.mu.RUnlock()
	return int(float64(e.CountText(string(raw), model)) * correction)
}

// PostHocCorrection is applied when a request is re-counted for
// accounting after the stream finished. The raw character heuristic
// undercounts conversational text by roughly this factor.
const PostHocCorrection = 1.15

// CountConversation counts the tokens of a request's system prompt,
// messages and tool schemas directly, with PostHocCorrection applied.
// Used for prompt accounting when the upstream reports no context
// usage, so the prompt number comes from the same counter as the
// completion tokens.
func (e *CharEstimator) CountConversation(messages []types.UnifiedMessage, systemPrompt string, tools []types.UnifiedTool, model string) int {
	total := e.CountText(systemPrompt, model)
	for _, m := range messages {
		total += e.CountText(m.Content, model)
		for _, tc := range m.ToolCalls {
			total += e.CountText(tc.Name, model)
			total += e.CountText(tc.Arguments, model)
		}
		for _, tr := range m.ToolResults {
			total += e.CountText(tr.Content, model)
		}
	}
	for _, tool := range tools {
		total += e.CountText(tool.Name, model)
		total += e.CountText(tool.Description, model)
		if len(tool.InputSchema) > 0 {
			if raw, err := json.Marshal(tool.InputSchema); err == nil {
				total += e.CountText(string(raw), model)
			}
		}
	}
	return int(float64(total)*PostHocCorrection + 0.5)
}

// SetCorrection updates the correction factor, for config hot reload.
func (e *CharEstimator) SetCorrection(correction float64) {
	if correction <= 0 {
		return
	}
	e.mu.Lock()
	e.config.Correction = correction
	e.mu.Unlock()
}

// charsPerToken resolves the ratio for a model: exact match, then prefix
// match, then the "default" entry.
func (e *CharEstimator) charsPerToken(model string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if ratio, ok := e.config.Models[model]; ok {
		return ratio
	}
	for pattern, ratio := range e.config.Models {
		if pattern != "default" && strings.HasPrefix(model, pattern) {
			return ratio
		}
	}
	if ratio, ok := e.config.Models["default"]; ok {
		return ratio
	}
	return 4.0
}
