package eventstream

import "log/slog"

// DeduplicateToolCalls removes duplicate tool calls in two passes.
//
// First, calls sharing an id are collapsed to the one with the best
// arguments: non-"{}" beats "{}", and longer beats shorter. Second, exact
// duplicates by (name, arguments) are dropped. Insertion order is
// preserved; calls without an id are kept after the keyed ones.
func DeduplicateToolCalls(calls []ToolCall) []ToolCall {
	byID := make(map[string]ToolCall)
	var idOrder []string
	var withoutID []ToolCall

	for _, tc := range calls {
		if tc.ID == "" {
			withoutID = append(withoutID, tc)
			continue
		}
		existing, ok := byID[tc.ID]
		if !ok {
			byID[tc.ID] = tc
			idOrder = append(idOrder, tc.ID)
			continue
		}
		if tc.Arguments != "{}" && (existing.Arguments == "{}" || len(tc.Arguments) > len(existing.Arguments)) {
			slog.Debug("replacing tool call with better arguments",
				"id", tc.ID,
				"old_len", len(existing.Arguments),
				"new_len", len(tc.Arguments),
			)
			byID[tc.ID] = tc
		}
	}

	seen := make(map[string]struct{})
	var unique []ToolCall
	appendUnique := func(tc ToolCall) {
		key := tc.Name + "-" + tc.Arguments
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		unique = append(unique, tc)
	}

	for _, id := range idOrder {
		appendUnique(byID[id])
	}
	for _, tc := range withoutID {
		appendUnique(tc)
	}

	if len(unique) != len(calls) {
		slog.Debug("deduplicated tool calls", "before", len(calls), "after", len(unique))
	}
	return unique
}
