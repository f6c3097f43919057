package convert

import (
	"log/slog"
	"strings"

	"kirohq/gateway/pkg/proxy/types"
)

// OpenAIToUnified converts OpenAI-dialect messages into the unified form.
//
// All system messages are concatenated (newline-joined) into the returned
// system prompt. Tool messages become synthetic user messages carrying
// tool_results; consecutive tool messages merge into one synthetic message,
// preserving order. Images are extracted from user content parts and from
// tool messages (MCP-style tools return screenshots inside tool content).
func OpenAIToUnified(messages []types.Message) (string, []types.UnifiedMessage) {
	var systemParts []string
	var nonSystem []types.Message

	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			systemParts = append(systemParts, extractTextContent(msg.Content))
		} else {
			nonSystem = append(nonSystem, msg)
		}
	}
	systemPrompt := strings.TrimSpace(strings.Join(systemParts, "\n"))

	var unified []types.UnifiedMessage
	var pendingResults []types.UnifiedToolResult
	var pendingImages []types.UnifiedImage

	flushPending := func() {
		if len(pendingResults) == 0 {
			return
		}
		unified = append(unified, types.UnifiedMessage{
			Role:        types.RoleUser,
			ToolResults: pendingResults,
			Images:      pendingImages,
		})
		pendingResults = nil
		pendingImages = nil
	}

	var totalCalls, totalResults, totalImages int

	for _, msg := range nonSystem {
		if msg.Role == types.RoleTool {
			content := extractTextContent(msg.Content)
			if content == "" {
				content = "(empty result)"
			}
			pendingResults = append(pendingResults, types.UnifiedToolResult{
				ToolUseID: msg.ToolCallID,
				Content:   content,
			})
			totalResults++

			if imgs := extractImagesFromContent(msg.Content); len(imgs) > 0 {
				pendingImages = append(pendingImages, imgs...)
				totalImages += len(imgs)
			}
			continue
		}

		flushPending()

		um := types.UnifiedMessage{
			Role:    msg.Role,
			Content: extractTextContent(msg.Content),
		}

		switch msg.Role {
		case types.RoleAssistant:
			for _, tc := range msg.ToolCalls {
				args := tc.Function.Arguments
				if args == "" {
					args = "{}"
				}
				um.ToolCalls = append(um.ToolCalls, types.UnifiedToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: args,
				})
			}
			totalCalls += len(um.ToolCalls)

		case types.RoleUser:
			um.ToolResults = extractToolResultBlocks(msg.Content)
			totalResults += len(um.ToolResults)
			um.Images = extractImagesFromContent(msg.Content)
			totalImages += len(um.Images)
		}

		unified = append(unified, um)
	}

	flushPending()

	if totalCalls > 0 || totalResults > 0 || totalImages > 0 {
		slog.Debug("converted OpenAI messages",
			"messages", len(messages),
			"tool_calls", totalCalls,
			"tool_results", totalResults,
			"images", totalImages,
		)
	}

	return systemPrompt, unified
}

// OpenAIToolsToUnified converts OpenAI tool declarations to the unified
// form. Both the standard nested encoding and the flat editor-style
// encoding are accepted; the nested form wins when both are present.
// Invalid entries are skipped.
func OpenAIToolsToUnified(tools []types.Tool) []types.UnifiedTool {
	var unified []types.UnifiedTool
	for _, tool := range tools {
		if tool.Type != "function" {
			continue
		}
		switch {
		case tool.Function != nil:
			unified = append(unified, types.UnifiedTool{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				InputSchema: tool.Function.Parameters,
			})
		case tool.Name != "":
			unified = append(unified, types.UnifiedTool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		default:
			slog.Warn("skipping invalid tool: no function or name field")
		}
	}
	return unified
}

// extractTextContent renders OpenAI message content as plain text.
// Content is either a string or a list of typed parts.
func extractTextContent(content interface{}) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		var sb strings.Builder
		for _, part := range v {
			m, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			if m["type"] == "text" {
				if text, ok := m["text"].(string); ok {
					sb.WriteString(text)
				}
			}
		}
		return sb.String()
	default:
		return ""
	}
}

// extractImagesFromContent pulls data-URI images out of image_url parts.
func extractImagesFromContent(content interface{}) []types.UnifiedImage {
	parts, ok := content.([]interface{})
	if !ok {
		return nil
	}

	var images []types.UnifiedImage
	for _, part := range parts {
		m, ok := part.(map[string]interface{})
		if !ok || m["type"] != "image_url" {
			continue
		}
		iu, ok := m["image_url"].(map[string]interface{})
		if !ok {
			continue
		}
		url, _ := iu["url"].(string)
		if img, ok := parseDataURI(url); ok {
			images = append(images, img)
		}
	}
	return images
}

// extractToolResultBlocks pulls MCP-style tool_result blocks embedded in
// user message content.
func extractToolResultBlocks(content interface{}) []types.UnifiedToolResult {
	parts, ok := content.([]interface{})
	if !ok {
		return nil
	}

	var results []types.UnifiedToolResult
	for _, part := range parts {
		m, ok := part.(map[string]interface{})
		if !ok || m["type"] != "tool_result" {
			continue
		}
		id, _ := m["tool_use_id"].(string)
		if id == "" {
			continue
		}
		text := extractTextContent(m["content"])
		if s, ok := m["content"].(string); ok {
			text = s
		}
		if text == "" {
			text = "(empty result)"
		}
		results = append(results, types.UnifiedToolResult{
			ToolUseID: id,
			Content:   text,
		})
	}
	return results
}

// parseDataURI decodes a data:<media>;base64,<data> image URL.
func parseDataURI(url string) (types.UnifiedImage, bool) {
	if !strings.HasPrefix(url, "data:") {
		return types.UnifiedImage{}, false
	}
	rest := url[len("data:"):]
	sep := strings.Index(rest, ";base64,")
	if sep == -1 {
		return types.UnifiedImage{}, false
	}
	mediaType := rest[:sep]
	data := rest[sep+len(";base64,"):]
	if mediaType == "" || data == "" {
		return types.UnifiedImage{}, false
	}
	return types.UnifiedImage{MediaType: mediaType, Data: data}, true
}
