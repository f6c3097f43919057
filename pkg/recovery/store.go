// Package recovery remembers upstream truncation events across requests
// and injects synthetic notices into the next client request that
// references them.
package recovery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ToolTruncation records that a tool call's arguments were cut off by
// the upstream mid-stream.
type ToolTruncation struct {
	ToolName  string
	Reason    string
	SizeBytes int
	SeenAt    time.Time
}

// ContentTruncation records that an assistant message's text ended
// without completion signals.
type ContentTruncation struct {
	SeenAt time.Time
}

// Store is the process-wide truncation registry. Entries are written at
// stream completion and consumed (deleted) the first time a subsequent
// request references them.
type Store struct {
	enabled bool

	mu            sync.Mutex
	byToolCallID  map[string]ToolTruncation
	byContentHash map[string]ContentTruncation
}

// NewStore creates a store. A disabled store accepts writes and lookups
// but never records or matches anything.
func NewStore(enabled bool) *Store {
	return &Store{
		enabled:       enabled,
		byToolCallID:  make(map[string]ToolTruncation),
		byContentHash: make(map[string]ContentTruncation),
	}
}

// Enabled reports whether the recovery mechanism is active.
func (s *Store) Enabled() bool { return s.enabled }

// RecordTool remembers a truncated tool call by its tool_use_id.
func (s *Store) RecordTool(toolCallID, toolName, reason string, sizeBytes int) {
	if !s.enabled || toolCallID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToolCallID[toolCallID] = ToolTruncation{
		ToolName:  toolName,
		Reason:    reason,
		SizeBytes: sizeBytes,
		SeenAt:    time.Now(),
	}
	slog.Info("tool truncation recorded", "tool_call_id", toolCallID, "tool", toolName, "reason", reason)
}

// RecordContent remembers a truncated assistant message by the hash of
// its text.
func (s *Store) RecordContent(text string) {
	if !s.enabled || text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byContentHash[hashText(text)] = ContentTruncation{SeenAt: time.Now()}
	slog.Info("content truncation recorded", "content_len", len(text))
}

// ConsumeTool returns and deletes the record for a tool_use_id.
func (s *Store) ConsumeTool(toolCallID string) (ToolTruncation, bool) {
	if !s.enabled {
		return ToolTruncation{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byToolCallID[toolCallID]
	if ok {
		delete(s.byToolCallID, toolCallID)
	}
	return rec, ok
}

// ConsumeContent returns and deletes the record matching the text's hash.
func (s *Store) ConsumeContent(text string) (ContentTruncation, bool) {
	if !s.enabled || text == "" {
		return ContentTruncation{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := hashText(text)
	rec, ok := s.byContentHash[key]
	if ok {
		delete(s.byContentHash, key)
	}
	return rec, ok
}

// Pending returns the number of outstanding records of each kind.
func (s *Store) Pending() (tools, contents int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byToolCallID), len(s.byContentHash)
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ToolNotice builds the synthetic text prepended to a tool_result whose
// tool call was truncated, followed by the original content.
func ToolNotice(rec ToolTruncation, original string) string {
	return fmt.Sprintf(
		"[SYSTEM NOTICE] The previous call to tool '%s' was truncated by the upstream API "+
			"(%s, %d bytes received). The arguments you produced were incomplete and the tool "+
			"ran with partial input. Retry the call with smaller or narrower arguments, for "+
			"example by splitting the work into multiple calls.\n\n---\n\nOriginal tool result:\n%s",
		rec.ToolName, rec.Reason, rec.SizeBytes, original)
}

// ContentNotice builds the synthetic user message inserted after an
// assistant message whose content was truncated.
func ContentNotice() string {
	return "[SYSTEM NOTICE] Your previous response was truncated by the upstream API before " +
		"completion. Please continue exactly where you left off, without repeating what was " +
		"already said."
}
