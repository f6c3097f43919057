package models

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Resolution sources, in the order the layers are consulted.
const (
	// SourceHidden means the name matched the hidden-model map.
	SourceHidden = "hidden"

	// SourceCache means the name was found in the dynamic catalog.
	SourceCache = "cache"

	// SourcePassthrough means the name is unknown locally and is sent
	// to the upstream as-is. The upstream is the final arbiter.
	SourcePassthrough = "passthrough"
)

// Resolution is the result of resolving a client-supplied model name.
type Resolution struct {
	// InternalID is the identifier sent to the upstream.
	InternalID string

	// Source is one of SourceHidden, SourceCache, SourcePassthrough.
	Source string

	// OriginalRequest is the name the client sent.
	OriginalRequest string

	// Normalized is the name after alias expansion and normalization.
	Normalized string

	// IsVerified is true when the name was found locally (hidden or cache).
	IsVerified bool
}

// Name-shape patterns, tried in order. Minor versions are 1-2 digits so
// 8-digit date suffixes never match as a version.
var (
	// claude-haiku-4-5, claude-haiku-4-5-20251001, claude-sonnet-4-5-1m-latest
	standardPattern = regexp.MustCompile(`^(claude-(?:haiku|sonnet|opus)-\d+)-(\d{1,2})(?:-(1m))?(?:-(?:\d{8}|latest|\d+))?$`)

	// claude-sonnet-4, claude-sonnet-4-20250514
	noMinorPattern = regexp.MustCompile(`^(claude-(?:haiku|sonnet|opus)-\d+)(?:-\d{8})?$`)

	// claude-3-7-sonnet, claude-3-7-sonnet-20250219
	legacyPattern = regexp.MustCompile(`^(claude)-(\d+)-(\d+)-(haiku|sonnet|opus)(?:-(?:\d{8}|latest|\d+))?$`)

	// claude-haiku-4.5-20251001, claude-3.7-sonnet-20250219
	dotWithDatePattern = regexp.MustCompile(`^(claude-(?:\d+\.\d+-)?(?:haiku|sonnet|opus)(?:-\d+\.\d+)?)-\d{8}$`)

	// claude-4.5-opus-high, claude-4.5-sonnet-low-thinking. The suffix is
	// required so already-normalized legacy names like claude-3.7-sonnet
	// do not match.
	invertedPattern = regexp.MustCompile(`^claude-(\d+)\.(\d+)-(haiku|sonnet|opus)-(.+)$`)

	familyPattern = regexp.MustCompile(`(?i)(haiku|sonnet|opus)`)
)

// Normalize converts the client name shapes into the canonical dot form:
// dashes before a version become a dot, date and "latest" suffixes are
// stripped, legacy family-last and inverted forms are rewritten. A trailing
// "-1m" context-window suffix is preserved. Unrecognized names are returned
// unchanged. Normalize is idempotent.
func Normalize(name string) string {
	lower := strings.ToLower(name)

	if m := standardPattern.FindStringSubmatch(lower); m != nil {
		suffix := ""
		if m[3] != "" {
			suffix = "-" + m[3]
		}
		return fmt.Sprintf("%s.%s%s", m[1], m[2], suffix)
	}

	if m := noMinorPattern.FindStringSubmatch(lower); m != nil {
		return m[1]
	}

	if m := legacyPattern.FindStringSubmatch(lower); m != nil {
		return fmt.Sprintf("%s-%s.%s-%s", m[1], m[2], m[3], m[4])
	}

	if m := dotWithDatePattern.FindStringSubmatch(lower); m != nil {
		return m[1]
	}

	if m := invertedPattern.FindStringSubmatch(lower); m != nil {
		return fmt.Sprintf("claude-%s-%s.%s", m[3], m[1], m[2])
	}

	// Unknown shape: pass through with original casing.
	return name
}

// ExtractFamily returns the model family ("haiku", "sonnet", "opus") found
// in a model name, or "" when none is recognizable.
func ExtractFamily(name string) string {
	if m := familyPattern.FindStringSubmatch(name); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

// Resolver maps client-supplied model names to upstream identifiers.
//
// Resolution layers, first match wins:
//  1. Alias map (then the result continues through the layers below).
//  2. Normalize.
//  3. Hidden-model map (before the catalog, so configured redirects such as
//     context-window upgrades take priority).
//  4. Dynamic catalog.
//  5. Passthrough.
//
// Resolve never fails. The maps may be swapped at runtime by the config
// watcher, so all accesses go through a read lock.
type Resolver struct {
	catalog *Catalog

	mu             sync.RWMutex
	hidden         map[string]string
	aliases        map[string]string
	hiddenFromList map[string]struct{}
}

// NewResolver creates a resolver over the given catalog and maps.
// Nil maps are treated as empty.
func NewResolver(catalog *Catalog, hidden, aliases map[string]string, hiddenFromList []string) *Resolver {
	r := &Resolver{catalog: catalog}
	r.SetMaps(hidden, aliases, hiddenFromList)
	return r
}

// SetMaps atomically replaces the alias, hidden-model and hidden-from-list
// maps. Used by config hot reload.
func (r *Resolver) SetMaps(hidden, aliases map[string]string, hiddenFromList []string) {
	h := make(map[string]string, len(hidden))
	for k, v := range hidden {
		h[k] = v
	}
	a := make(map[string]string, len(aliases))
	for k, v := range aliases {
		a[k] = v
	}
	hl := make(map[string]struct{}, len(hiddenFromList))
	for _, id := range hiddenFromList {
		hl[id] = struct{}{}
	}

	r.mu.Lock()
	r.hidden = h
	r.aliases = a
	r.hiddenFromList = hl
	r.mu.Unlock()
}

// Resolve maps an external model name to an upstream identifier.
// It never rejects: unknown names pass through normalized.
func (r *Resolver) Resolve(external string) Resolution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved := external
	if target, ok := r.aliases[external]; ok {
		slog.Debug("model alias resolved", "alias", external, "target", target)
		resolved = target
	}

	normalized := Normalize(resolved)

	if internal, ok := r.hidden[normalized]; ok {
		slog.Debug("model found in hidden map", "model", normalized, "internal_id", internal)
		return Resolution{
			InternalID:      internal,
			Source:          SourceHidden,
			OriginalRequest: external,
			Normalized:      normalized,
			IsVerified:      true,
		}
	}

	if r.catalog.Contains(normalized) {
		slog.Debug("model found in dynamic catalog", "model", normalized)
		return Resolution{
			InternalID:      normalized,
			Source:          SourceCache,
			OriginalRequest: external,
			Normalized:      normalized,
			IsVerified:      true,
		}
	}

	slog.Info("model not known locally, passing through to upstream",
		"model", external,
		"normalized", normalized,
	)
	return Resolution{
		InternalID:      normalized,
		Source:          SourcePassthrough,
		OriginalRequest: external,
		Normalized:      normalized,
		IsVerified:      false,
	}
}

// AvailableModels returns the model IDs for the listing endpoint:
// catalog entries plus hidden-model display names plus alias names, minus
// the hidden-from-list set. Sorted.
func (r *Resolver) AvailableModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{})
	for _, id := range r.catalog.IDs() {
		set[id] = struct{}{}
	}
	for name := range r.hidden {
		set[name] = struct{}{}
	}
	for id := range r.hiddenFromList {
		delete(set, id)
	}
	for alias := range r.aliases {
		set[alias] = struct{}{}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ModelsByFamily filters AvailableModels to a single family. Used for
// error-message suggestions.
func (r *Resolver) ModelsByFamily(family string) []string {
	var out []string
	for _, id := range r.AvailableModels() {
		if strings.Contains(strings.ToLower(id), strings.ToLower(family)) {
			out = append(out, id)
		}
	}
	return out
}

// SuggestionsFor returns available models from the same family as the
// given name. Suggestions never cross families; when the family cannot be
// determined, all models are returned.
func (r *Resolver) SuggestionsFor(name string) []string {
	if family := ExtractFamily(name); family != "" {
		return r.ModelsByFamily(family)
	}
	return r.AvailableModels()
}

// MaxInputTokens reports the context window of the given upstream ID.
func (r *Resolver) MaxInputTokens(internalID string) int {
	return r.catalog.MaxInputTokens(internalID)
}
