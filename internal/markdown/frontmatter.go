package markdown

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const fence = "---"

// Frontmatter accumulates ordered frontmatter lines.
type Frontmatter struct {
	lines []string
}

// Quoted adds a double-quoted string value.
func (f *Frontmatter) Quoted(key, value string) *Frontmatter {
	return f.Raw(key, Quote(value))
}

// Raw adds a value verbatim (numbers, booleans, null, dates).
func (f *Frontmatter) Raw(key, value string) *Frontmatter {
	f.lines = append(f.lines, key+": "+value)
	return f
}

// JSON adds a value encoded as compact JSON, used for tag arrays.
func (f *Frontmatter) JSON(key string, value any) *Frontmatter {
	return f.Raw(key, JSONValue(value))
}

// Block adds a nested mapping. Each child is indented two spaces.
func (f *Frontmatter) Block(key string, children ...string) *Frontmatter {
	f.lines = append(f.lines, key+":")
	for _, child := range children {
		f.lines = append(f.lines, "  "+child)
	}
	return f
}

// Render returns the fenced block without a trailing newline.
func (f *Frontmatter) Render() string {
	var b strings.Builder
	b.WriteString(fence)
	b.WriteByte('\n')
	for _, line := range f.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(fence)
	return b.String()
}

// Quote renders s as a YAML double-quoted scalar.
func Quote(s string) string {
	return strconv.Quote(s)
}

// JSONValue encodes v without HTML escaping. Encoding failures yield "[]".
func JSONValue(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "[]"
	}
	return strings.TrimSpace(buf.String())
}

// Split separates a document into its frontmatter lines and body. ok is
// false when the document does not open with a frontmatter fence.
func Split(doc string) (front []string, body string, ok bool) {
	doc = strings.TrimPrefix(doc, "\ufeff")
	if !strings.HasPrefix(doc, fence+"\n") && !strings.HasPrefix(doc, fence+"\r\n") {
		return nil, doc, false
	}
	rest := doc[strings.IndexByte(doc, '\n')+1:]
	offset := 0
	for {
		nl := strings.IndexByte(rest[offset:], '\n')
		var line string
		if nl < 0 {
			line = rest[offset:]
		} else {
			line = rest[offset : offset+nl]
		}
		if strings.TrimRight(line, "\r") == fence {
			front = splitLines(rest[:offset])
			if nl < 0 {
				return front, "", true
			}
			return front, rest[offset+nl+1:], true
		}
		if nl < 0 {
			return nil, doc, false
		}
		offset += nl + 1
	}
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	return lines
}

func join(front []string, body string) string {
	var b strings.Builder
	b.WriteString(fence)
	b.WriteByte('\n')
	for _, line := range front {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(fence)
	b.WriteByte('\n')
	b.WriteString(body)
	return b.String()
}

func topLevelKey(line string) (string, bool) {
	if line == "" || line[0] == ' ' || line[0] == '\t' || line[0] == '#' {
		return "", false
	}
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", false
	}
	return strings.TrimSpace(line[:idx]), true
}

// Field returns the raw value of a top-level frontmatter key.
func Field(doc, key string) (string, bool) {
	front, _, ok := Split(doc)
	if !ok {
		return "", false
	}
	for _, line := range front {
		if k, ok := topLevelKey(line); ok && k == key {
			return strings.TrimSpace(line[strings.IndexByte(line, ':')+1:]), true
		}
	}
	return "", false
}

// StringField returns a top-level value with surrounding quotes removed.
func StringField(doc, key string) string {
	raw, ok := Field(doc, key)
	if !ok {
		return ""
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		return unquoted
	}
	return strings.Trim(raw, `'"`)
}

// SetField replaces the value of a top-level key, dropping any nested lines
// under it, or appends the key when absent. A document without frontmatter
// gains one.
func SetField(doc, key, rawValue string) string {
	front, body, ok := Split(doc)
	if !ok {
		return join([]string{key + ": " + rawValue}, doc)
	}
	out := make([]string, 0, len(front)+1)
	replaced := false
	skipping := false
	for _, line := range front {
		if skipping {
			if line != "" && (line[0] == ' ' || line[0] == '\t' || strings.HasPrefix(line, "- ")) {
				continue
			}
			skipping = false
		}
		if k, isKey := topLevelKey(line); isKey && k == key {
			if !replaced {
				out = append(out, key+": "+rawValue)
				replaced = true
			}
			skipping = true
			continue
		}
		out = append(out, line)
	}
	if !replaced {
		out = append(out, key+": "+rawValue)
	}
	return join(out, body)
}

// AppendSection adds a level-two section to the end of the document.
func AppendSection(doc, heading, content string) string {
	doc = strings.TrimRight(doc, "\n")
	return doc + "\n\n## " + heading + "\n\n" + strings.TrimSpace(content) + "\n"
}
