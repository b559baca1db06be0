package visual

import (
	"context"
	"errors"
	"strings"

	"gardenpipe/internal/markdown"
	"gardenpipe/internal/services/llm"
	"gardenpipe/internal/structured"
	"gardenpipe/internal/textutil"
)

const (
	maxDiagrams        = 3
	contentPreview     = 1000
	diagramTokens      = 3000
	diagramTemperature = 0.3
)

var diagramKeywords = []string{"graph", "flowchart", "sequenceDiagram", "classDiagram"}

// directKeywords are accepted at the start of a bare (unfenced) response.
var directKeywords = append([]string{"stateDiagram"}, diagramKeywords...)

const diagramSystemPrompt = `あなたはシンプルで明確なMermaid図を生成する専門家です。

重要なルール:
1. ノード数: 3-5個（多すぎない）
2. ラベル: 簡潔（各ノード10文字以内推奨）
3. 関係性: 一目で理解できる明確さ
4. スタイル: graph TD または flowchart を使用
5. 日本語対応`

var categoryHints = map[string]string{
	"insight":       "洞察の流れや因果関係を表現",
	"idea":          "アイデアの構造や関連性を表現",
	"weekly-review": "時系列や進捗を表現",
}

var diagramDecoder = structured.MustDecoder("mermaid diagrams", `{
	"type": "array",
	"maxItems": 10,
	"items": {
		"type": "object",
		"required": ["title", "mermaid_code"],
		"properties": {
			"type": {"type": "string"},
			"title": {"type": "string"},
			"description": {"type": "string"},
			"mermaid_code": {"type": "string"}
		}
	}
}`)

// ErrNoDiagram means the response held no usable Mermaid code.
var ErrNoDiagram = errors.New("no valid mermaid diagram in response")

// GenerateDiagrams asks the model for one to three diagrams. A JSON array
// is preferred; fenced mermaid blocks or a bare diagram are accepted as a
// fallback. Invalid diagrams are dropped.
func (e *Enhancer) GenerateDiagrams(ctx context.Context, content, title, category string) ([]Diagram, error) {
	raw, err := e.llm.Complete(ctx, llm.Request{
		System:      diagramSystemPrompt,
		Prompt:      diagramPrompt(content, title, category),
		MaxTokens:   diagramTokens,
		Temperature: llm.Temperature(diagramTemperature),
	})
	if err != nil {
		return nil, err
	}
	diagrams, err := ParseDiagrams(raw, title)
	if err != nil {
		return nil, err
	}
	return diagrams, nil
}

// ParseDiagrams extracts valid diagrams from a model response. An empty
// JSON array is a valid "no diagram" answer.
func ParseDiagrams(raw, title string) ([]Diagram, error) {
	var decoded []Diagram
	if err := diagramDecoder.Decode(raw, &decoded); err == nil {
		return keepValid(decoded), nil
	}
	var found []Diagram
	for _, code := range markdown.FencedBlocks(raw, "mermaid") {
		found = append(found, Diagram{Type: DiagramType(code), Title: title, Code: code})
	}
	if len(found) == 0 {
		trimmed := strings.TrimSpace(raw)
		for _, kw := range directKeywords {
			if strings.HasPrefix(trimmed, kw) {
				found = append(found, Diagram{Type: DiagramType(trimmed), Title: title, Code: trimmed})
				break
			}
		}
	}
	valid := keepValid(found)
	if len(valid) == 0 {
		return nil, ErrNoDiagram
	}
	return valid, nil
}

func keepValid(in []Diagram) []Diagram {
	out := make([]Diagram, 0, len(in))
	for _, d := range in {
		d.Code = strings.TrimSpace(d.Code)
		if !ValidateDiagram(d.Code) {
			continue
		}
		if d.Type == "" {
			d.Type = DiagramType(d.Code)
		}
		out = append(out, d)
		if len(out) == maxDiagrams {
			break
		}
	}
	return out
}

// ValidateDiagram checks for a minimum length, a diagram keyword and at
// least one edge.
func ValidateDiagram(code string) bool {
	if len(code) < 10 {
		return false
	}
	hasKeyword := false
	for _, kw := range diagramKeywords {
		if strings.Contains(code, kw) {
			hasKeyword = true
			break
		}
	}
	return hasKeyword && (strings.Contains(code, "-->") || strings.Contains(code, "--") || strings.Contains(code, "->"))
}

// DiagramType maps the opening keyword to a short type name.
func DiagramType(code string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(code), "\n")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "graph", "flowchart":
		return "flowchart"
	case "sequenceDiagram":
		return "sequence"
	case "classDiagram":
		return "class"
	case "stateDiagram", "stateDiagram-v2":
		return "state"
	case "gantt":
		return "gantt"
	}
	return fields[0]
}

func diagramPrompt(content, title, category string) string {
	hint, ok := categoryHints[strings.TrimSuffix(category, "s")]
	if !ok {
		hint = "概念間の関係を表現"
	}
	return "以下の記事を分析し、内容を視覚化するMermaid図表を1-3個生成してください。\n\n" +
		"タイトル: " + title + "\nカテゴリ: " + category + "\nヒント: " + hint + "\n\n" +
		"記事内容（抜粋）:\n" + textutil.Truncate(content, contentPreview, "") + "\n\n" +
		"要件:\n- ノード数: 3-5個\n- ラベル: 簡潔で明確\n- 日本語ラベルはダブルクォートで囲む\n- スタイル: graph TD または flowchart TD\n\n" +
		`以下のJSON配列形式のみで返してください（コードブロックなし）:
[{"type": "flowchart | sequence | class | state", "title": "図表のタイトル（30文字以内）", "description": "図表の説明（50文字以内）", "mermaid_code": "mermaidコード"}]
図表が不要な場合は空配列 [] を返してください。`
}
