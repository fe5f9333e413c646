package codegen

import (
	"strings"
)

// DefaultArtifactTag is the tag the model is instructed to wrap each
// generated file in, e.g. <file name="Button.tsx"> ... </file>.
const DefaultArtifactTag = "file"

// Artifact is one parsed, non-empty code unit extracted from a model
// response, destined for persistence as a component version.
type Artifact struct {
	Name string
	Code string
}

type parserState int

const (
	// stateScanning means we are outside any block, looking for an open tag.
	stateScanning parserState = iota
	// stateInBody means an open tag was matched and body text accumulates
	// until the corresponding close tag arrives.
	stateInBody
)

// ArtifactParser incrementally extracts tagged artifacts from an unbounded
// chunked token stream. It keeps a running buffer bounded by the size of one
// artifact: prose outside blocks is discarded as soon as it cannot be the
// start of an open tag, and a completed block is emitted and dropped the
// moment its close tag is seen. Chunk boundaries may split tag delimiters
// anywhere; split delimiters are buffered, never treated as literal text.
//
// The parser is a pure transducer: the same ordered chunk sequence always
// yields the same ordered artifact sequence, regardless of how the input is
// split into chunks.
type ArtifactParser struct {
	openPrefix string // "<" + tag
	closeTag   string // "</" + tag + ">"

	state parserState
	buf   string
	attrs map[string]string
}

// NewArtifactParser creates a parser that matches blocks wrapped in the
// given tag name.
func NewArtifactParser(tag string) *ArtifactParser {
	if tag == "" {
		tag = DefaultArtifactTag
	}
	return &ArtifactParser{
		openPrefix: "<" + tag,
		closeTag:   "</" + tag + ">",
	}
}

// Feed consumes the next chunk of model output and returns every artifact
// completed by it, in stream order. Blocks whose body trims to the empty
// string are suppressed.
func (p *ArtifactParser) Feed(chunk string) []Artifact {
	p.buf += chunk

	var out []Artifact
	for {
		switch p.state {
		case stateScanning:
			if !p.scanForOpenTag() {
				return out
			}
		case stateInBody:
			idx := strings.Index(p.buf, p.closeTag)
			if idx < 0 {
				// Body still open; everything buffered belongs to it.
				return out
			}
			if a, ok := p.emit(p.buf[:idx]); ok {
				out = append(out, a)
			}
			p.buf = p.buf[idx+len(p.closeTag):]
			p.state = stateScanning
		}
	}
}

// Finalize reports end of stream. Any still-open block is discarded, not
// emitted; the returned flag is true when that happened so the caller can
// report a partial completion instead of silently dropping work.
func (p *ArtifactParser) Finalize() ([]Artifact, bool) {
	discarded := p.state == stateInBody ||
		(p.state == stateScanning && strings.HasPrefix(p.buf, p.openPrefix))

	p.state = stateScanning
	p.buf = ""
	p.attrs = nil

	// Feed drains eagerly, so no artifact can complete at finalize time.
	return nil, discarded
}

// scanForOpenTag advances over prose until a complete open tag is matched.
// It returns true when the parser transitioned (an open tag was consumed, or
// a self-closing block was handled) and the scan loop should continue, and
// false when more input is needed. Prose that can no longer be the start of
// an open tag is discarded.
func (p *ArtifactParser) scanForOpenTag() bool {
	start := 0
	for {
		idx := strings.Index(p.buf[start:], p.openPrefix)
		if idx < 0 {
			// Keep only a suffix that could still be a split open delimiter.
			p.buf = overlapSuffix(p.buf, p.openPrefix)
			return false
		}
		idx += start

		rest := p.buf[idx+len(p.openPrefix):]
		if rest == "" {
			// "<file" at the very end: cannot distinguish from "<filename"
			// yet, wait for the next chunk.
			p.buf = p.buf[idx:]
			return false
		}

		// The byte after the tag name decides whether this is our tag or a
		// longer name like <filename>.
		switch rest[0] {
		case ' ', '\t', '\r', '\n', '>', '/':
		default:
			start = idx + 1
			continue
		}

		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			// Open delimiter split across chunks; buffer from the tag start.
			p.buf = p.buf[idx:]
			return false
		}

		attrText := rest[:gt]
		selfClosing := strings.HasSuffix(strings.TrimSpace(attrText), "/")
		p.attrs = parseAttributes(strings.TrimSuffix(strings.TrimSpace(attrText), "/"))
		p.buf = rest[gt+1:]

		if selfClosing {
			// A self-closed block has no body, which trims to empty and is
			// suppressed like any other empty artifact.
			p.attrs = nil
			return true
		}

		p.state = stateInBody
		return true
	}
}

// emit builds the artifact for a completed block, applying the empty-body
// suppression policy.
func (p *ArtifactParser) emit(body string) (Artifact, bool) {
	name := p.attrs["name"]
	if name == "" {
		name = p.attrs["fileName"]
	}
	p.attrs = nil

	code := strings.TrimSpace(body)
	if code == "" {
		return Artifact{}, false
	}
	return Artifact{Name: name, Code: code}, true
}

// parseAttributes scans `key="value"` pairs from an open tag's attribute
// region. Single and double quotes are accepted; unquoted values run to the
// next whitespace.
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	i := 0
	for i < len(s) {
		// Skip whitespace between pairs.
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			break
		}

		keyStart := i
		for i < len(s) && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		key := s[keyStart:i]

		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != '=' {
			// Bare attribute without a value.
			if key != "" {
				attrs[key] = ""
			}
			continue
		}
		i++ // consume '='
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			attrs[key] = ""
			break
		}

		var value string
		if q := s[i]; q == '"' || q == '\'' {
			i++
			valStart := i
			for i < len(s) && s[i] != q {
				i++
			}
			value = s[valStart:i]
			if i < len(s) {
				i++ // consume closing quote
			}
		} else {
			valStart := i
			for i < len(s) && !isSpace(s[i]) {
				i++
			}
			value = s[valStart:i]
		}
		if key != "" {
			attrs[key] = value
		}
	}
	return attrs
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// overlapSuffix returns the longest proper suffix of s that is a prefix of
// pattern, so a split delimiter at a chunk boundary survives to the next
// Feed call.
func overlapSuffix(s, pattern string) string {
	max := len(pattern) - 1
	if len(s) < max {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if s[len(s)-n:] == pattern[:n] {
			return s[len(s)-n:]
		}
	}
	return ""
}
