package logs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gardenpipe/internal/logging"
)

// Entry is one decoded JSON log line. Attributes other than the standard
// fields are kept in Fields.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	SessionID string
	Stage     string
	Item      string
	EventType string
	Fields    map[string]any
	Raw       string
}

var reservedKeys = map[string]struct{}{
	"ts": {}, "level": {}, "msg": {}, "source": {},
	logging.FieldComponent: {}, logging.FieldSessionID: {}, logging.FieldStage: {},
	logging.FieldItem: {}, logging.FieldEventType: {},
}

// Parse decodes a JSON log line. Lines that are not JSON objects come back
// as an entry holding only Raw.
func Parse(line string) Entry {
	entry := Entry{Raw: line}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return entry
	}
	entry.Level = strings.ToLower(str(fields["level"]))
	entry.Message = str(fields["msg"])
	entry.Component = str(fields[logging.FieldComponent])
	entry.SessionID = str(fields[logging.FieldSessionID])
	entry.Stage = str(fields[logging.FieldStage])
	entry.Item = str(fields[logging.FieldItem])
	entry.EventType = str(fields[logging.FieldEventType])
	if ts := str(fields["ts"]); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Time = parsed
		}
	}
	for key := range fields {
		if _, reserved := reservedKeys[key]; reserved {
			delete(fields, key)
		}
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}
	return entry
}

func str(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// Filter selects entries. Zero values match everything.
type Filter struct {
	MinLevel  string
	Component string
	Stage     string
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Match reports whether e passes the filter. Raw non-JSON lines always pass.
func (f Filter) Match(e Entry) bool {
	if e.Level == "" && e.Message == "" {
		return true
	}
	if f.MinLevel != "" {
		if floor, ok := levelRank[strings.ToLower(f.MinLevel)]; ok && levelRank[e.Level] < floor {
			return false
		}
	}
	if f.Component != "" && !strings.EqualFold(f.Component, e.Component) {
		return false
	}
	if f.Stage != "" && !strings.EqualFold(f.Stage, e.Stage) {
		return false
	}
	return true
}

// Format renders e on one line: time, level, component, message, then the
// remaining fields sorted by key.
func Format(e Entry) string {
	if e.Level == "" && e.Message == "" {
		return e.Raw
	}
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(e.Level))
	if e.Component != "" {
		fmt.Fprintf(&b, "[%s] ", e.Component)
	}
	b.WriteString(e.Message)
	if e.Stage != "" {
		fmt.Fprintf(&b, " stage=%s", e.Stage)
	}
	if e.Item != "" {
		fmt.Fprintf(&b, " item=%s", e.Item)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

func firstEntry(path string) (Entry, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return Entry{}, false, err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return Parse(line), true, nil
		}
	}
	return Entry{}, false, scanner.Err()
}
