package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kirohq/gateway/pkg/convert"
	"kirohq/gateway/pkg/limits/ratelimit"
	"kirohq/gateway/pkg/proxy/middleware"
	"kirohq/gateway/pkg/proxy/types"
	"kirohq/gateway/pkg/reasoning"
	"kirohq/gateway/pkg/stream"
	"kirohq/gateway/pkg/upstream"
)

// chatParams is the dialect-independent description of one chat request
// after parsing.
type chatParams struct {
	dialect       string
	endpoint      string
	externalModel string
	systemPrompt  string
	messages      []types.UnifiedMessage
	tools         []types.UnifiedTool
}

// execution is the prepared back half of a chat request: admission slot
// held, account selected, payload built.
type execution struct {
	comp    *completion
	client  *upstream.Client
	url     string
	payload []byte

	emitOpts stream.EmitOptions
	pumpFor  func() stream.PumpOptions
	release  func()

	maxRetries        int
	firstTokenTimeout time.Duration
}

// tokenLimitError carries a failed per-key token check up to the
// handler, which answers 429 with rate limit headers.
type tokenLimitError struct {
	result *ratelimit.CheckResult
}

func (e *tokenLimitError) Error() string {
	return "token rate limit: " + e.result.Reason
}

// prepare runs the shared front half of both dialect endpoints:
// truncation rewrite, admission gate, account selection, payload
// construction and the per-key token check. The returned execution
// holds a gate slot; the caller must invoke release exactly once.
func (d *Deps) prepare(ctx context.Context, p chatParams) (*execution, error) {
	cfg := d.cfg()
	res := d.Resolver.Resolve(p.externalModel)

	messages := p.messages
	if d.Recovery != nil && d.Recovery.Enabled() {
		messages = d.Recovery.Rewrite(messages)
	}

	comp := &completion{
		deps:     d,
		dialect:  p.dialect,
		endpoint: p.endpoint,
		model:    res.Normalized,
		key:      middleware.GetAPIKey(ctx),
		limiter:  middleware.GetKeyLimiter(ctx),
		start:    time.Now(),
	}

	release, err := d.acquireGate(ctx)
	if err != nil {
		return nil, err
	}

	account, mgr, err := d.Pool.Select(ctx)
	if err != nil {
		release()
		return nil, err
	}
	comp.account = account

	region := mgr.Region()
	if region == "" {
		region = cfg.Upstream.Region
	}

	payload, err := convert.BuildPayload(messages, p.systemPrompt, res.InternalID, p.tools, convert.BuildOptions{
		ConversationID:           uuid.New().String(),
		ProfileArn:               mgr.ProfileArn(),
		InjectThinking:           cfg.ReasoningEnabled(),
		MaxThinkingLength:        cfg.Reasoning.MaxTokens,
		ToolDescriptionMaxLength: cfg.Convert.ToolDescriptionMaxLength,
	})
	if err != nil {
		release()
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		release()
		return nil, fmt.Errorf("marshal upstream payload: %w", err)
	}

	estimate := 0
	if d.Estimator != nil {
		estimate = d.Estimator.EstimatePayload(payload, res.InternalID)
	}
	if comp.limiter != nil {
		if chk := comp.limiter.CheckTokens(estimate); !chk.Allowed {
			release()
			return nil, &tokenLimitError{result: chk}
		}
	}

	emitOpts := stream.EmitOptions{
		Model:          p.externalModel,
		MaxInputTokens: d.Resolver.MaxInputTokens(res.InternalID),
		ReasoningMode:  cfg.Reasoning.Handling,
	}
	if d.Estimator != nil {
		// The payload estimate above only feeds the limit check; the
		// accounting fallback re-counts the request itself.
		emitOpts.FallbackPrompt = func() int {
			return d.Estimator.CountConversation(messages, p.systemPrompt, p.tools, res.InternalID)
		}
		emitOpts.CountCompletion = func(text string) int {
			return d.Estimator.CountText(text, res.InternalID)
		}
	}

	// The thinking parser is stateful, so each retry attempt gets a
	// fresh one.
	pumpFor := func() stream.PumpOptions {
		po := stream.PumpOptions{FirstTokenTimeout: cfg.Streaming.FirstTokenTimeout}
		if cfg.ReasoningEnabled() {
			po.Thinking = reasoning.NewParser(cfg.Reasoning.Handling,
				cfg.Reasoning.OpenTags, cfg.Reasoning.InitialBufferSize)
		}
		return po
	}

	assistantURL := upstream.AssistantResponseURL
	if d.AssistantURL != nil {
		assistantURL = d.AssistantURL
	}

	return &execution{
		comp:              comp,
		client:            d.newClient(mgr),
		url:               assistantURL(region),
		payload:           body,
		emitOpts:          emitOpts,
		pumpFor:           pumpFor,
		release:           release,
		maxRetries:        cfg.Streaming.FirstTokenMaxRetries,
		firstTokenTimeout: cfg.Streaming.FirstTokenTimeout,
	}, nil
}
