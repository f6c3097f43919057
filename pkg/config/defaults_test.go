package config

import (
	"testing"

	"kirohq/gateway/pkg/models"
)

// The default hidden-model table redirects claude-sonnet-4.5 to its
// extended-context id. The hidden layer sits before the catalog, so the
// redirect wins even when the catalog lists the plain name.
func TestDefaultHiddenModelsExtendedContext(t *testing.T) {
	catalog := models.NewCatalog(0)
	catalog.UseFallback()
	r := models.NewResolver(catalog,
		DefaultHiddenModels(), DefaultModelAliases(), DefaultHiddenFromList())

	res := r.Resolve("claude-sonnet-4-5")
	if res.InternalID != "claude-sonnet-4.5-1m" {
		t.Fatalf("InternalID = %q, want claude-sonnet-4.5-1m", res.InternalID)
	}
	if res.Source != models.SourceHidden {
		t.Errorf("Source = %q, want %q", res.Source, models.SourceHidden)
	}
	if got := r.MaxInputTokens(res.InternalID); got != 1000000 {
		t.Errorf("MaxInputTokens(%q) = %d, want 1000000", res.InternalID, got)
	}
}
