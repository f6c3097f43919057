// Package reasoning extracts thinking blocks from streamed content.
//
// Some upstream models emit their reasoning inside delimiter tags
// (<thinking>, <think>, <reasoning>, <thought>) at the start of the
// response. The parser watches a small prefix of the stream for one of the
// configured opening tags; when found, subsequent content is routed into a
// separate thinking channel until the matching closing tag. If the prefix
// buffer fills without a tag, detection is disabled for the rest of the
// stream and everything passes through as regular content.
package reasoning

import "strings"

// Handling modes for extracted thinking content.
const (
	// ModeAsReasoningContent emits thinking as a separate channel
	// (reasoning_content deltas on the OpenAI dialect, thinking blocks on
	// the Anthropic dialect).
	ModeAsReasoningContent = "as_reasoning_content"

	// ModeStripTags keeps the thinking text in the regular content but
	// drops the delimiter tags.
	ModeStripTags = "strip_tags"

	// ModeRemove drops thinking content entirely.
	ModeRemove = "remove"

	// ModePass re-emits the thinking verbatim, tags included.
	ModePass = "pass"
)

// DefaultOpenTags are the opening delimiters watched for by default.
var DefaultOpenTags = []string{"<thinking>", "<think>", "<reasoning>", "<thought>"}

// DefaultBufferSize is the default detection prefix length.
const DefaultBufferSize = 20

// Result is the outcome of feeding one content chunk.
type Result struct {
	// Thinking is the thinking text extracted from this chunk.
	Thinking string

	// Regular is the regular content extracted from this chunk.
	Regular string

	// FirstThinkingChunk marks the first non-empty thinking emission.
	FirstThinkingChunk bool

	// LastThinkingChunk marks the emission that closed the block.
	LastThinkingChunk bool
}

const (
	stateDetecting = iota
	stateThinking
	statePassthrough
)

// Parser splits a content stream into thinking and regular channels.
// One instance per stream; not safe for concurrent use.
type Parser struct {
	mode       string
	openTags   []string
	bufferSize int

	state     int
	detectBuf string
	carry     string
	openTag   string
	closeTag  string

	found        bool
	emittedFirst bool
}

// NewParser creates a parser with the given handling mode, opening tags and
// detection buffer size. Zero/empty arguments select the defaults.
func NewParser(mode string, openTags []string, bufferSize int) *Parser {
	if len(openTags) == 0 {
		openTags = DefaultOpenTags
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Parser{
		mode:       mode,
		openTags:   openTags,
		bufferSize: bufferSize,
	}
}

// FoundThinkingBlock reports whether an opening tag was ever matched.
func (p *Parser) FoundThinkingBlock() bool {
	return p.found
}

// Feed consumes one content chunk and returns the split result.
func (p *Parser) Feed(content string) Result {
	switch p.state {
	case stateDetecting:
		return p.feedDetecting(content)
	case stateThinking:
		return p.feedThinking(content)
	default:
		return Result{Regular: content}
	}
}

func (p *Parser) feedDetecting(content string) Result {
	p.detectBuf += content
	trimmed := strings.TrimLeft(p.detectBuf, " \t\r\n")

	for _, tag := range p.openTags {
		if strings.HasPrefix(trimmed, tag) {
			p.found = true
			p.openTag = tag
			p.closeTag = "</" + tag[1:]
			p.state = stateThinking

			rest := trimmed[len(tag):]
			p.detectBuf = ""
			if rest == "" {
				return Result{}
			}
			return p.feedThinking(rest)
		}
	}

	// Keep waiting while the buffer could still become a tag.
	if len(trimmed) < p.bufferSize {
		for _, tag := range p.openTags {
			if strings.HasPrefix(tag, trimmed) {
				return Result{}
			}
		}
	}

	// No tag: flush everything buffered and stop detecting.
	p.state = statePassthrough
	flushed := p.detectBuf
	p.detectBuf = ""
	return Result{Regular: flushed}
}

func (p *Parser) feedThinking(content string) Result {
	p.carry += content

	if idx := strings.Index(p.carry, p.closeTag); idx != -1 {
		thinking := p.carry[:idx]
		regular := p.carry[idx+len(p.closeTag):]
		p.carry = ""
		p.state = statePassthrough

		res := Result{
			Thinking:          thinking,
			Regular:           regular,
			LastThinkingChunk: true,
		}
		if thinking != "" && !p.emittedFirst {
			res.FirstThinkingChunk = true
			p.emittedFirst = true
		}
		return res
	}

	// Hold back a suffix that could be the start of the closing tag.
	safe := len(p.carry) - (len(p.closeTag) - 1)
	if safe <= 0 {
		return Result{}
	}
	thinking := p.carry[:safe]
	p.carry = p.carry[safe:]

	res := Result{Thinking: thinking}
	if !p.emittedFirst {
		res.FirstThinkingChunk = true
		p.emittedFirst = true
	}
	return res
}

// Finalize flushes any buffered state at stream end. A thinking block that
// never closed is emitted as thinking with the last-chunk flag set.
func (p *Parser) Finalize() Result {
	switch p.state {
	case stateDetecting:
		flushed := p.detectBuf
		p.detectBuf = ""
		p.state = statePassthrough
		return Result{Regular: flushed}
	case stateThinking:
		thinking := p.carry
		p.carry = ""
		p.state = statePassthrough
		res := Result{Thinking: thinking, LastThinkingChunk: true}
		if thinking != "" && !p.emittedFirst {
			res.FirstThinkingChunk = true
			p.emittedFirst = true
		}
		return res
	default:
		return Result{}
	}
}

// ProcessForOutput formats extracted thinking text according to the
// handling mode. ModePass re-wraps the text in its original tags using the
// first/last chunk flags; ModeRemove drops it.
func (p *Parser) ProcessForOutput(thinking string, first, last bool) string {
	switch p.mode {
	case ModeRemove:
		return ""
	case ModePass:
		out := thinking
		if first {
			out = p.openTag + out
		}
		if last {
			out = out + p.closeTag
		}
		return out
	default:
		// as_reasoning_content and strip_tags both emit the bare text;
		// the emitter decides the channel.
		return thinking
	}
}

// Mode returns the configured handling mode.
func (p *Parser) Mode() string {
	return p.mode
}
