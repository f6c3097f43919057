package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"kirohq/gateway/pkg/proxy/types"
)

// ErrEmptyConversation is returned when a request carries no user or
// assistant turns to send upstream.
var ErrEmptyConversation = errors.New("no user or assistant messages to send")

// upstreamOrigin tags all user turns sent by the gateway.
const upstreamOrigin = "AI_EDITOR"

// BuildOptions controls payload construction.
type BuildOptions struct {
	// ConversationID identifies the conversation across turns.
	ConversationID string

	// ProfileArn is stamped on the payload for the simple-refresh
	// credential family; empty for OIDC accounts.
	ProfileArn string

	// InjectThinking enables the thinking-mode marker on the current turn.
	InjectThinking bool

	// MaxThinkingLength is the thinking budget advertised in the marker.
	MaxThinkingLength int

	// ToolDescriptionMaxLength is the description length above which tool
	// documentation moves into the system prompt. Zero disables the limit.
	ToolDescriptionMaxLength int
}

// BuildPayload turns a unified message sequence into the upstream request.
//
// The last user turn (if it carries text, images or tool results) becomes
// the current message and everything before it becomes history; when the
// sequence ends with an assistant turn, a synthetic "Continue" current
// message is used and the full sequence stays in history. The system
// prompt is merged into the current message only, never into history.
func BuildPayload(messages []types.UnifiedMessage, systemPrompt, modelID string, tools []types.UnifiedTool, opts BuildOptions) (*types.AssistantRequest, error) {
	hasTurn := false
	for i := range messages {
		if messages[i].Role == types.RoleUser || messages[i].Role == types.RoleAssistant {
			hasTurn = true
			break
		}
	}
	if !hasTurn {
		return nil, ErrEmptyConversation
	}

	var current types.UnifiedMessage
	var history []types.UnifiedMessage

	last := messages[len(messages)-1]
	if last.Role == types.RoleUser && !last.IsEmpty() {
		current = last
		history = messages[:len(messages)-1]
	} else {
		// Conversation ends with an assistant turn: ask it to continue
		// and keep the whole sequence as history.
		current = types.UnifiedMessage{Role: types.RoleUser, Content: "Continue"}
		history = messages
	}

	content := current.Content

	// The system prompt rides on the current message only; history
	// entries never carry it.
	if systemPrompt != "" {
		if content != "" {
			content = systemPrompt + "\n\n" + content
		} else {
			content = systemPrompt
		}
	}

	// Thinking injection happens even when tool results are present.
	if opts.InjectThinking {
		marker := fmt.Sprintf("<thinking_mode>enabled</thinking_mode><max_thinking_length>%d</max_thinking_length>", opts.MaxThinkingLength)
		if content != "" {
			content = marker + "\n" + content
		} else {
			content = marker
		}
	}

	specs, docSections := buildToolSpecs(tools, opts.ToolDescriptionMaxLength)
	for _, section := range docSections {
		content += section
	}

	uim := types.UserInputMessage{
		Content: content,
		ModelID: modelID,
		Origin:  upstreamOrigin,
		Images:  upstreamImages(current.Images),
	}

	if len(specs) > 0 || len(current.ToolResults) > 0 {
		uim.UserInputMessageContext = &types.UserInputMessageContext{
			Tools:       specs,
			ToolResults: upstreamToolResults(current.ToolResults),
		}
	}

	payload := &types.AssistantRequest{
		ConversationState: types.ConversationState{
			ChatTriggerType: "MANUAL",
			ConversationID:  opts.ConversationID,
			CurrentMessage:  types.CurrentMessage{UserInputMessage: uim},
			History:         buildHistory(history, modelID),
		},
		ProfileArn: opts.ProfileArn,
	}
	return payload, nil
}

// buildToolSpecs sanitizes the tool list and relocates oversized
// descriptions, returning the wire specs plus the documentation sections
// to append to the current message content.
func buildToolSpecs(tools []types.UnifiedTool, maxDescLen int) ([]types.UpstreamToolSpec, []string) {
	var specs []types.UpstreamToolSpec
	var sections []string

	for _, tool := range tools {
		desc := strings.TrimSpace(tool.Description)
		if desc == "" {
			desc = "Tool: " + tool.Name
		}

		if maxDescLen > 0 && len(desc) > maxDescLen {
			sections = append(sections, fmt.Sprintf("\n\n## Tool: %s\n%s", tool.Name, desc))
			desc = fmt.Sprintf("[Full documentation in system prompt under '## Tool: %s']", tool.Name)
			slog.Debug("tool description moved to system prompt",
				"tool", tool.Name,
				"length", len(tool.Description),
			)
		}

		specs = append(specs, types.UpstreamToolSpec{
			ToolSpecification: types.UpstreamToolSpecification{
				Name:        tool.Name,
				Description: desc,
				InputSchema: types.UpstreamToolSchema{JSON: sanitizeSchema(tool.InputSchema)},
			},
		})
	}
	return specs, sections
}

// sanitizeSchema removes the top-level schema keys the upstream rejects.
func sanitizeSchema(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if k == "required" || k == "additionalProperties" {
			continue
		}
		out[k] = v
	}
	return out
}

// buildHistory maps prior unified turns into upstream history entries.
func buildHistory(messages []types.UnifiedMessage, modelID string) []types.HistoryEntry {
	var history []types.HistoryEntry

	for i := range messages {
		m := &messages[i]
		switch m.Role {
		case types.RoleUser:
			uim := &types.UserInputMessage{
				Content: m.Content,
				ModelID: modelID,
				Origin:  upstreamOrigin,
				Images:  upstreamImages(m.Images),
			}
			if len(m.ToolResults) > 0 {
				uim.UserInputMessageContext = &types.UserInputMessageContext{
					ToolResults: upstreamToolResults(m.ToolResults),
				}
			}
			history = append(history, types.HistoryEntry{UserInputMessage: uim})

		case types.RoleAssistant:
			arm := &types.AssistantResponseMessage{
				Content:  m.Content,
				ToolUses: upstreamToolUses(m.ToolCalls),
			}
			history = append(history, types.HistoryEntry{AssistantResponseMessage: arm})

		default:
			slog.Debug("dropping history message with unsupported role", "role", m.Role)
		}
	}
	return history
}

func upstreamToolUses(calls []types.UnifiedToolCall) []types.UpstreamToolUse {
	var uses []types.UpstreamToolUse
	for _, tc := range calls {
		input := json.RawMessage(tc.Arguments)
		if !json.Valid(input) {
			input = json.RawMessage("{}")
		}
		uses = append(uses, types.UpstreamToolUse{
			ToolUseID: tc.ID,
			Name:      tc.Name,
			Input:     input,
		})
	}
	return uses
}

func upstreamToolResults(results []types.UnifiedToolResult) []types.UpstreamToolResult {
	var out []types.UpstreamToolResult
	for _, tr := range results {
		out = append(out, types.UpstreamToolResult{
			ToolUseID: tr.ToolUseID,
			Status:    "success",
			Content:   []types.UpstreamToolContent{{Text: tr.Content}},
		})
	}
	return out
}

func upstreamImages(images []types.UnifiedImage) []types.UpstreamImage {
	var out []types.UpstreamImage
	for _, img := range images {
		out = append(out, types.UpstreamImage{
			Format: mediaTypeToFormat(img.MediaType),
			Source: types.UpstreamImageSource{Bytes: img.Data},
		})
	}
	return out
}

// mediaTypeToFormat maps a MIME type to the upstream's bare format name.
func mediaTypeToFormat(mediaType string) string {
	format := mediaType
	if idx := strings.Index(format, "/"); idx != -1 {
		format = format[idx+1:]
	}
	if format == "jpg" {
		format = "jpeg"
	}
	return format
}
