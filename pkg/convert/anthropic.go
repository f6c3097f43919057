package convert

import (
	"encoding/json"
	"log/slog"
	"strings"

	"kirohq/gateway/pkg/proxy/types"
)

// AnthropicToUnified converts Anthropic-dialect messages into the unified
// form. Content may be a plain string or a list of typed blocks; tool_use
// blocks come from assistant turns, tool_result blocks (possibly carrying
// nested images) from user turns.
func AnthropicToUnified(messages []types.AnthropicMessage) []types.UnifiedMessage {
	var unified []types.UnifiedMessage
	var totalCalls, totalResults, totalImages int

	for _, msg := range messages {
		blocks, text := decodeAnthropicContent(msg.Content)

		um := types.UnifiedMessage{
			Role:    msg.Role,
			Content: text,
		}

		switch msg.Role {
		case types.RoleAssistant:
			for _, b := range blocks {
				if b.Type != "tool_use" || b.ID == "" || b.Name == "" {
					continue
				}
				um.ToolCalls = append(um.ToolCalls, types.UnifiedToolCall{
					ID:        b.ID,
					Name:      b.Name,
					Arguments: rawToArguments(b.Input),
				})
			}
			totalCalls += len(um.ToolCalls)

		case types.RoleUser:
			for _, b := range blocks {
				switch b.Type {
				case "tool_result":
					if b.ToolUseID == "" {
						continue
					}
					content, nested := decodeToolResultContent(b.Content)
					if content == "" {
						content = "(empty result)"
					}
					um.ToolResults = append(um.ToolResults, types.UnifiedToolResult{
						ToolUseID: b.ToolUseID,
						Content:   content,
					})
					// Browser-style tools return screenshots inside
					// the tool_result content.
					um.Images = append(um.Images, nested...)

				case "image":
					if img, ok := imageFromSource(b.Source); ok {
						um.Images = append(um.Images, img)
					}
				}
			}
			totalResults += len(um.ToolResults)
			totalImages += len(um.Images)
		}

		unified = append(unified, um)
	}

	if totalCalls > 0 || totalResults > 0 || totalImages > 0 {
		slog.Debug("converted Anthropic messages",
			"messages", len(messages),
			"tool_calls", totalCalls,
			"tool_results", totalResults,
			"images", totalImages,
		)
	}

	return unified
}

// AnthropicToolsToUnified converts Anthropic tool declarations; the shapes
// map directly.
func AnthropicToolsToUnified(tools []types.AnthropicTool) []types.UnifiedTool {
	var unified []types.UnifiedTool
	for _, tool := range tools {
		unified = append(unified, types.UnifiedTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return unified
}

// ExtractSystemPrompt renders the Anthropic system field, which is either
// a plain string or a list of text blocks with cache-control annotations.
// Annotations are dropped; block texts are newline-joined.
func ExtractSystemPrompt(system json.RawMessage) string {
	if len(system) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(system, &s); err == nil {
		return s
	}

	var blocks []types.AnthropicContentBlock
	if err := json.Unmarshal(system, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// decodeAnthropicContent parses message content into blocks plus the
// concatenated text of its text blocks.
func decodeAnthropicContent(content json.RawMessage) ([]types.AnthropicContentBlock, string) {
	if len(content) == 0 {
		return nil, ""
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return nil, s
	}

	var blocks []types.AnthropicContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil, ""
	}

	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return blocks, sb.String()
}

// decodeToolResultContent renders tool_result content (string or nested
// block list) as text, extracting any nested images.
func decodeToolResultContent(content json.RawMessage) (string, []types.UnifiedImage) {
	if len(content) == 0 {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s, nil
	}

	var blocks []types.AnthropicContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return "", nil
	}

	var sb strings.Builder
	var images []types.UnifiedImage
	for _, b := range blocks {
		switch b.Type {
		case "text":
			sb.WriteString(b.Text)
		case "image":
			if img, ok := imageFromSource(b.Source); ok {
				images = append(images, img)
			}
		}
	}
	return sb.String(), images
}

func imageFromSource(src *types.AnthropicImageSource) (types.UnifiedImage, bool) {
	if src == nil || src.Data == "" {
		return types.UnifiedImage{}, false
	}
	return types.UnifiedImage{
		MediaType: src.MediaType,
		Data:      src.Data,
	}, true
}

// rawToArguments renders a tool_use input as a JSON argument string.
func rawToArguments(input json.RawMessage) string {
	if len(input) == 0 {
		return "{}"
	}
	// Input may itself be a JSON string containing the arguments.
	var s string
	if err := json.Unmarshal(input, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "{}"
		}
		return s
	}
	return string(input)
}
