package models

import (
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		// Standard dashed minor version.
		{"dashed minor", "claude-haiku-4-5", "claude-haiku-4.5"},
		{"dashed minor with date", "claude-haiku-4-5-20251001", "claude-haiku-4.5"},
		{"dashed minor latest", "claude-haiku-4-5-latest", "claude-haiku-4.5"},
		{"dashed minor 1m", "claude-sonnet-4-5-1m", "claude-sonnet-4.5-1m"},
		{"dashed minor 1m with date", "claude-sonnet-4-5-1m-20250930", "claude-sonnet-4.5-1m"},

		// No minor version.
		{"no minor", "claude-sonnet-4", "claude-sonnet-4"},
		{"no minor with date", "claude-sonnet-4-20250514", "claude-sonnet-4"},

		// Legacy family-last form.
		{"legacy", "claude-3-7-sonnet", "claude-3.7-sonnet"},
		{"legacy with date", "claude-3-7-sonnet-20250219", "claude-3.7-sonnet"},
		{"legacy latest", "claude-3-5-haiku-latest", "claude-3.5-haiku"},

		// Dot form with trailing date.
		{"dot with date", "claude-haiku-4.5-20251001", "claude-haiku-4.5"},
		{"legacy dot with date", "claude-3.7-sonnet-20250219", "claude-3.7-sonnet"},

		// Inverted form with required suffix.
		{"inverted high", "claude-4.5-opus-high", "claude-opus-4.5"},
		{"inverted thinking", "claude-4.5-sonnet-low-thinking", "claude-sonnet-4.5"},

		// Already normalized or unknown: unchanged.
		{"already normalized", "claude-haiku-4.5", "claude-haiku-4.5"},
		{"legacy normalized", "claude-3.7-sonnet", "claude-3.7-sonnet"},
		{"auto", "auto", "auto"},
		{"unknown model", "gpt-4o", "gpt-4o"},
		{"uppercase input", "Claude-Haiku-4-5", "claude-haiku-4.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"claude-haiku-4-5",
		"claude-3-7-sonnet-20250219",
		"claude-4.5-opus-high",
		"claude-sonnet-4-5-1m",
		"claude-sonnet-4",
		"auto",
		"totally-unknown",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestExtractFamily(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"claude-opus-4.5", "opus"},
		{"claude-3.7-sonnet", "sonnet"},
		{"CLAUDE-HAIKU-4.5", "haiku"},
		{"auto", ""},
	}
	for _, tt := range tests {
		if got := ExtractFamily(tt.input); got != tt.want {
			t.Errorf("ExtractFamily(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func newTestResolver() *Resolver {
	catalog := NewCatalog(time.Hour)
	catalog.Update([]Entry{
		{ID: "auto"},
		{ID: "claude-sonnet-4.5"},
		{ID: "claude-opus-4.6"},
	})
	hidden := map[string]string{
		"claude-3.7-sonnet": "CLAUDE_3_7_SONNET_20250219_V1_0",
	}
	aliases := map[string]string{
		"auto-kiro": "auto",
	}
	return NewResolver(catalog, hidden, aliases, []string{"auto"})
}

func TestResolve(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name         string
		input        string
		wantID       string
		wantSource   string
		wantVerified bool
	}{
		{"alias then cache", "auto-kiro", "auto", SourceCache, true},
		{"cache direct", "claude-sonnet-4.5", "claude-sonnet-4.5", SourceCache, true},
		{"cache after normalize", "claude-sonnet-4-5", "claude-sonnet-4.5", SourceCache, true},
		{"hidden legacy dated", "claude-3-7-sonnet-20250219", "CLAUDE_3_7_SONNET_20250219_V1_0", SourceHidden, true},
		{"hidden normalized", "claude-3.7-sonnet", "CLAUDE_3_7_SONNET_20250219_V1_0", SourceHidden, true},
		{"passthrough unknown", "gpt-4o", "gpt-4o", SourcePassthrough, false},
		{"passthrough normalized unknown", "claude-haiku-4-5", "claude-haiku-4.5", SourcePassthrough, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.input)
			if res.InternalID != tt.wantID {
				t.Errorf("InternalID = %q, want %q", res.InternalID, tt.wantID)
			}
			if res.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", res.Source, tt.wantSource)
			}
			if res.IsVerified != tt.wantVerified {
				t.Errorf("IsVerified = %v, want %v", res.IsVerified, tt.wantVerified)
			}
			if res.OriginalRequest != tt.input {
				t.Errorf("OriginalRequest = %q, want %q", res.OriginalRequest, tt.input)
			}
		})
	}
}

func TestResolveHiddenBeatsCache(t *testing.T) {
	catalog := NewCatalog(0)
	catalog.Update([]Entry{{ID: "claude-sonnet-4.5"}})
	r := NewResolver(catalog, map[string]string{
		"claude-sonnet-4.5": "claude-sonnet-4.5-1m",
	}, nil, nil)

	res := r.Resolve("claude-sonnet-4-5")
	if res.Source != SourceHidden {
		t.Fatalf("Source = %q, want %q", res.Source, SourceHidden)
	}
	if res.InternalID != "claude-sonnet-4.5-1m" {
		t.Errorf("InternalID = %q, want claude-sonnet-4.5-1m", res.InternalID)
	}
}

func TestAvailableModels(t *testing.T) {
	r := newTestResolver()
	got := r.AvailableModels()

	want := map[string]bool{
		"auto-kiro":         true, // alias key shown
		"claude-sonnet-4.5": true,
		"claude-opus-4.6":   true,
		"claude-3.7-sonnet": true, // hidden display name shown
	}
	if len(got) != len(want) {
		t.Fatalf("AvailableModels() = %v, want %d entries", got, len(want))
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected model %q in list", id)
		}
		if id == "auto" {
			t.Error("hidden-from-list model \"auto\" should not be listed")
		}
	}
}

func TestSuggestionsStayInFamily(t *testing.T) {
	r := newTestResolver()

	got := r.SuggestionsFor("claude-opus-9000")
	for _, id := range got {
		if ExtractFamily(id) != "opus" {
			t.Errorf("suggestion %q is not from the opus family", id)
		}
	}
	if len(got) == 0 {
		t.Error("expected at least one opus suggestion")
	}
}

func TestCatalogMaxInputTokens(t *testing.T) {
	c := NewCatalog(0)
	c.Update([]Entry{
		{ID: "claude-sonnet-4.5", MaxInputTokens: 200000},
		{ID: "claude-sonnet-4.5-1m"},
		{ID: "custom", MaxInputTokens: 12345},
	})

	tests := []struct {
		id   string
		want int
	}{
		{"claude-sonnet-4.5", 200000},
		{"claude-sonnet-4.5-1m", 1000000},
		{"custom", 12345},
		{"unknown", DefaultMaxInputTokens},
	}
	for _, tt := range tests {
		if got := c.MaxInputTokens(tt.id); got != tt.want {
			t.Errorf("MaxInputTokens(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestCatalogFallback(t *testing.T) {
	c := NewCatalog(0)
	c.UseFallback()

	if !c.FromFallback() {
		t.Error("FromFallback() = false after UseFallback()")
	}
	if !c.Contains("claude-opus-4.6") {
		t.Error("fallback list should contain claude-opus-4.6")
	}

	c.Update([]Entry{{ID: "auto"}})
	if c.FromFallback() {
		t.Error("FromFallback() = true after Update()")
	}
}
