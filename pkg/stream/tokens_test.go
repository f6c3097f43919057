package stream

import "testing"

func TestAccountTokensFromContextUsage(t *testing.T) {
	pct := 1.5
	acct := AccountTokens(&pct, 500, 200000, nil)

	if acct.TotalTokens != 3000 {
		t.Errorf("total = %d", acct.TotalTokens)
	}
	if acct.PromptTokens != 2500 {
		t.Errorf("prompt = %d", acct.PromptTokens)
	}
	if acct.CompletionTokens != 500 {
		t.Errorf("completion = %d", acct.CompletionTokens)
	}
	if acct.TotalSource != "upstream" {
		t.Errorf("total source = %q", acct.TotalSource)
	}
}

func TestAccountTokensPromptNeverNegative(t *testing.T) {
	pct := 0.01
	acct := AccountTokens(&pct, 1000, 200000, nil)
	if acct.PromptTokens != 0 {
		t.Errorf("prompt = %d, want 0", acct.PromptTokens)
	}
}

func TestAccountTokensFallback(t *testing.T) {
	acct := AccountTokens(nil, 200, 200000, func() int { return 1200 })
	if acct.PromptTokens != 1200 || acct.TotalTokens != 1400 {
		t.Errorf("acct = %+v", acct)
	}
	if acct.PromptSource != "estimate+correction" {
		t.Errorf("prompt source = %q", acct.PromptSource)
	}
}

func TestAccountTokensNoFallback(t *testing.T) {
	acct := AccountTokens(nil, 200, 200000, nil)
	if acct.PromptTokens != 0 || acct.TotalTokens != 200 {
		t.Errorf("acct = %+v", acct)
	}
}
