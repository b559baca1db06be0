package markdown

import (
	"slices"
	"strings"
	"testing"
)

func TestFrontmatterRender(t *testing.T) {
	var fm Frontmatter
	fm.Quoted("title", `AI "活用"`).
		JSON("tags", []string{"AI", "<学習>"}).
		Raw("confidence", "0.9").
		Block("processing", `session_id: "s1"`)
	want := "---\n" +
		"title: \"AI \\\"活用\\\"\"\n" +
		"tags: [\"AI\",\"<学習>\"]\n" +
		"confidence: 0.9\n" +
		"processing:\n" +
		"  session_id: \"s1\"\n" +
		"---"
	if got := fm.Render(); got != want {
		t.Fatalf("unexpected render:\n%s\nwant:\n%s", got, want)
	}
}

func TestSplitAndFields(t *testing.T) {
	doc := "---\ntitle: \"Hello\"\nimpact:\n  business_value: null\ndraft: false\n---\n\n## Body\n"
	front, body, ok := Split(doc)
	if !ok || len(front) != 4 {
		t.Fatalf("unexpected split: ok=%v front=%v", ok, front)
	}
	if body != "\n## Body\n" {
		t.Fatalf("unexpected body %q", body)
	}
	if got := StringField(doc, "title"); got != "Hello" {
		t.Fatalf("unexpected title %q", got)
	}
	if raw, ok := Field(doc, "draft"); !ok || raw != "false" {
		t.Fatalf("unexpected draft %q ok=%v", raw, ok)
	}
	if _, ok := Field(doc, "business_value"); ok {
		t.Fatal("nested keys must not be reported as top-level fields")
	}
	if _, _, ok := Split("no frontmatter"); ok {
		t.Fatal("expected split to fail without fence")
	}
}

func TestSetField(t *testing.T) {
	doc := "---\ntitle: \"T\"\nresearchCitations:\n  - old\ndraft: false\n---\nbody\n"
	updated := SetField(doc, "researchCitations", `["https://a.example"]`)
	if strings.Contains(updated, "old") {
		t.Fatalf("expected nested list replaced: %s", updated)
	}
	if raw, _ := Field(updated, "researchCitations"); raw != `["https://a.example"]` {
		t.Fatalf("unexpected citations %q", raw)
	}
	if raw, _ := Field(updated, "draft"); raw != "false" {
		t.Fatalf("expected following key preserved, got %q", raw)
	}

	added := SetField(doc, "thumbnail", `"/images/thumbnails/x.png"`)
	if got := StringField(added, "thumbnail"); got != "/images/thumbnails/x.png" {
		t.Fatalf("unexpected thumbnail %q", got)
	}
	if !strings.HasSuffix(added, "---\nbody\n") {
		t.Fatalf("expected body preserved: %q", added)
	}

	bare := SetField("just text\n", "title", `"X"`)
	if !strings.HasPrefix(bare, "---\ntitle: \"X\"\n---\njust text") {
		t.Fatalf("expected frontmatter created: %q", bare)
	}
}

func TestAppendSection(t *testing.T) {
	got := AppendSection("# T\n\nbody\n\n", "まとめ", "  done  ")
	if got != "# T\n\nbody\n\n## まとめ\n\ndone\n" {
		t.Fatalf("unexpected document %q", got)
	}
}

func TestFencedBlocks(t *testing.T) {
	src := "intro\n\n```mermaid\ngraph TD\n  A --> B\n```\n\n```go\nfmt.Println()\n```\n\n```Mermaid\nflowchart LR\n  X --> Y\n```\n"
	blocks := FencedBlocks(src, "mermaid")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 mermaid blocks, got %d: %v", len(blocks), blocks)
	}
	if blocks[0] != "graph TD\n  A --> B" {
		t.Fatalf("unexpected first block %q", blocks[0])
	}
	if all := FencedBlocks(src, ""); len(all) != 3 {
		t.Fatalf("expected every block with empty lang, got %d", len(all))
	}
}

func TestHeadings(t *testing.T) {
	doc := "---\ntitle: \"# not a heading\"\n---\n# タイトル\n\n## 核心的な洞察\n\ntext\n\n### 詳細\n"
	got := Headings(doc)
	texts := make([]string, 0, len(got))
	for _, h := range got {
		texts = append(texts, h.Text)
	}
	if !slices.Equal(texts, []string{"タイトル", "核心的な洞察", "詳細"}) {
		t.Fatalf("unexpected headings %v", texts)
	}
	if got[1].Level != 2 {
		t.Fatalf("unexpected level %d", got[1].Level)
	}
	if !HasHeading(doc, "洞察") || HasHeading(doc, "まとめ") {
		t.Fatal("unexpected HasHeading result")
	}
}
