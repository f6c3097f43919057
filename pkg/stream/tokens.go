package stream

import (
	"log/slog"
	"math"
)

// Accounting is the usage triple reported to clients and the recorder,
// with provenance tags for logging.
type Accounting struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	// PromptSource and TotalSource tag where the numbers came from:
	// "subtraction"/"upstream" when derived from the context_usage
	// percentage, "estimate+correction" for the local fallback.
	PromptSource string
	TotalSource  string
}

// AccountTokens computes the usage triple for a finished stream.
//
// When the upstream reported a context_usage percentage, total tokens are
// derived from the model's context window and prompt tokens by
// subtraction. Otherwise fallbackPrompt supplies a local estimate of the
// prompt (already corrected); a nil fallbackPrompt leaves the prompt at
// zero.
func AccountTokens(contextUsagePct *float64, completionTokens, maxInputTokens int, fallbackPrompt func() int) Accounting {
	if contextUsagePct != nil && *contextUsagePct > 0 {
		total := int(math.Round(*contextUsagePct / 100 * float64(maxInputTokens)))
		prompt := total - completionTokens
		if prompt < 0 {
			prompt = 0
		}
		slog.Debug("token accounting from context usage",
			"percentage", *contextUsagePct,
			"max_input_tokens", maxInputTokens,
			"total", total,
			"completion", completionTokens,
			"prompt", prompt,
		)
		return Accounting{
			PromptTokens:     prompt,
			CompletionTokens: completionTokens,
			TotalTokens:      total,
			PromptSource:     "subtraction",
			TotalSource:      "upstream",
		}
	}

	acct := Accounting{
		CompletionTokens: completionTokens,
		TotalTokens:      completionTokens,
		PromptSource:     "unknown",
		TotalSource:      "estimate",
	}
	if fallbackPrompt != nil {
		acct.PromptTokens = fallbackPrompt()
		acct.TotalTokens = acct.PromptTokens + completionTokens
		acct.PromptSource = "estimate+correction"
		acct.TotalSource = "estimate+correction"
		slog.Warn("no context usage from upstream, using local token estimate",
			"prompt", acct.PromptTokens,
			"completion", completionTokens,
		)
	} else {
		slog.Warn("no context usage from upstream and no fallback estimate",
			"completion", completionTokens,
		)
	}
	return acct
}
