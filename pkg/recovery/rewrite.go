package recovery

import (
	"log/slog"

	"kirohq/gateway/pkg/proxy/types"
)

// Rewrite scans a unified conversation for references to recorded
// truncations and injects the synthetic notices. Tool results matching
// a recorded tool_use_id get the notice prepended; assistant turns
// whose text matches a recorded content hash get a synthetic user
// message inserted after them. Matched records are consumed.
func (s *Store) Rewrite(messages []types.UnifiedMessage) []types.UnifiedMessage {
	if !s.enabled || len(messages) == 0 {
		return messages
	}

	out := make([]types.UnifiedMessage, 0, len(messages))
	toolNotices := 0
	contentNotices := 0

	for _, msg := range messages {
		if msg.Role == types.RoleUser && len(msg.ToolResults) > 0 {
			for i := range msg.ToolResults {
				rec, ok := s.ConsumeTool(msg.ToolResults[i].ToolUseID)
				if !ok {
					continue
				}
				msg.ToolResults[i].Content = ToolNotice(rec, msg.ToolResults[i].Content)
				toolNotices++
			}
		}

		out = append(out, msg)

		if msg.Role == types.RoleAssistant && msg.Content != "" {
			if _, ok := s.ConsumeContent(msg.Content); ok {
				out = append(out, types.UnifiedMessage{
					Role:    types.RoleUser,
					Content: ContentNotice(),
				})
				contentNotices++
			}
		}
	}

	if toolNotices > 0 || contentNotices > 0 {
		slog.Info("truncation recovery applied",
			"tool_notices", toolNotices,
			"content_notices", contentNotices)
	}
	return out
}
