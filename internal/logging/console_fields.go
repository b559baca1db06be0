package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

// infoHighlightKeys are shown first, in this order, at info level.
var infoHighlightKeys = []string{
	FieldEventType,
	"category",
	"title",
	"confidence",
	"status",
	"error",
	FieldErrorKind,
	FieldErrorHint,
	FieldImpact,
	"stage_duration",
	"processed",
	"failed",
	"skipped",
	"branch",
	"commit",
	"pages_url",
	"pr_url",
}

func selectInfoFields(attrs []kv) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, len(attrs))
	hidden := 0

	add := func(idx int) {
		used[idx] = true
		attr := attrs[idx]
		if skipInfoKey(attr.key) {
			return
		}
		if isDebugOnlyKey(attr.key) {
			hidden++
			return
		}
		value := formatValueForKey(attr.key, attr.value)
		if shouldHideInfoValue(attr.key, value) {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: value})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				add(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			add(idx)
		}
	}
	return result, hidden
}

func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	if isDurationKey(key) && v.Kind() == slog.KindDuration {
		return formatDurationHuman(v.Duration())
	}
	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	value := formatValue(v)
	if key == "error" && len(value) > 200 {
		value = value[:200] + "…"
	}
	return value
}

func isDurationKey(key string) bool {
	return strings.HasSuffix(key, "_duration") ||
		strings.HasSuffix(key, "_elapsed") ||
		key == "elapsed" ||
		key == "duration" ||
		key == "backoff"
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldItem, FieldStage, FieldComponent:
		return true
	}
	return false
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case FieldSessionID, "segments", "segment_count", "token_count", "prompt_chars", "model":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir") || strings.HasSuffix(key, "_id")
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error", FieldErrorHint:
		return false
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case FieldErrorKind:
		return "Error Kind"
	case "stage_duration":
		return "Duration"
	case "pages_url":
		return "Pages"
	case "pr_url":
		return "Pull Request"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for i, part := range parts {
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}
