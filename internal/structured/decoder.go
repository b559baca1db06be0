// Package structured decodes JSON produced by hosted models against a JSON
// Schema before binding it to Go types.
//
// Decoding is strict: a payload that cannot be located, parsed, or validated
// yields a *services.MalformedResponse. The only tolerance is positional
// (surrounding prose or a single code fence) and the widening of a scalar
// into a one-element slice when the target field is a slice.
package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"gardenpipe/internal/services"
)

// Decoder validates payloads against one compiled schema.
type Decoder struct {
	op     string
	schema *jsonschema.Schema
}

// NewDecoder compiles the given schema document. op names the operation in
// error messages.
func NewDecoder(op, schemaJSON string) (*Decoder, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse %s schema: %w", op, err)
	}
	name := op + ".schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", op, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", op, err)
	}
	return &Decoder{op: op, schema: schema}, nil
}

// MustDecoder is NewDecoder for package-level schemas known at compile time.
func MustDecoder(op, schemaJSON string) *Decoder {
	d, err := NewDecoder(op, schemaJSON)
	if err != nil {
		panic(err)
	}
	return d
}

// Decode locates the JSON payload in content, validates it, and binds it to
// target using `json` struct tags.
func (d *Decoder) Decode(content string, target any) error {
	value, err := d.Validate(content)
	if err != nil {
		return err
	}
	if err := bind(value, target); err != nil {
		return d.malformed("bind payload", content, err)
	}
	return nil
}

// Validate returns the parsed payload once it satisfies the schema.
func (d *Decoder) Validate(content string) (any, error) {
	payload := ExtractPayload(content)
	if payload == "" {
		return nil, d.malformed("no JSON payload found", content, nil)
	}
	value, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
	if err != nil {
		return nil, d.malformed("invalid JSON", payload, err)
	}
	if err := d.schema.Validate(value); err != nil {
		return nil, d.malformed("schema violation", payload, flattenValidation(err))
	}
	return value, nil
}

func (d *Decoder) malformed(reason, content string, err error) error {
	return &services.MalformedResponse{
		Op:      d.op,
		Reason:  reason,
		Snippet: Snippet(content),
		Err:     err,
	}
}

func bind(value any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(value)
}

func flattenValidation(err error) error {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	leaves := verr.BasicOutput().Errors
	parts := make([]string, 0, len(leaves))
	for _, unit := range leaves {
		if unit.Error == nil {
			continue
		}
		loc := unit.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", loc, unit.Error.String()))
	}
	if len(parts) == 0 {
		return err
	}
	return errors.New(strings.Join(parts, "; "))
}

// ExtractPayload returns the JSON object or array embedded in content,
// stripping one surrounding code fence and any leading or trailing prose.
func ExtractPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(trimmed, pair[0])
		end := strings.LastIndexByte(trimmed, pair[1])
		if start >= 0 && end > start {
			candidate := strings.TrimSpace(trimmed[start : end+1])
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}
	}
	return ""
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}
	body := trimmed[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		lang := strings.TrimSpace(body[:nl])
		if lang == "" || strings.EqualFold(lang, "json") {
			body = body[nl+1:]
		}
	}
	if idx := strings.Index(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// Snippet compacts content into a short single-line preview for errors.
func Snippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	var buf bytes.Buffer
	for i, field := range strings.Fields(trimmed) {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(field)
	}
	const limit = 160
	runes := []rune(buf.String())
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return string(runes)
}
