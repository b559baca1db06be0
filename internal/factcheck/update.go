package factcheck

import (
	"fmt"
	"os"
	"strings"

	"gardenpipe/internal/fileutil"
	"gardenpipe/internal/markdown"
)

// CorrectionsSection is the heading appended when claims need fixing.
const CorrectionsSection = "📝 事実確認結果"

// Apply writes researchCitations to the frontmatter and, when any claim
// carries a correction, appends the corrections section.
func Apply(doc string, check ArticleFactCheck) string {
	if len(check.Citations) > 0 {
		doc = markdown.SetField(doc, "researchCitations", markdown.JSONValue(check.Citations))
	}
	if check.CorrectionsNeeded == 0 {
		return doc
	}
	var b strings.Builder
	fmt.Fprintf(&b, "この記事の技術的主張のうち、%d件に修正が推奨されます。", check.CorrectionsNeeded)
	for _, r := range check.Results {
		if r.CorrectedClaim == "" {
			continue
		}
		b.WriteString("\n\n### 修正推奨\n\n")
		fmt.Fprintf(&b, "**元の主張**: %s\n\n", r.Claim)
		fmt.Fprintf(&b, "**推奨される修正**: %s", r.CorrectedClaim)
		if r.Notes != "" {
			fmt.Fprintf(&b, "\n\n**補足**: %s", r.Notes)
		}
	}
	return markdown.AppendSection(doc, CorrectionsSection, b.String())
}

// UpdateFile applies check to the Markdown file at path.
func UpdateFile(path string, check ArticleFactCheck) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read article: %w", err)
	}
	if _, _, ok := markdown.Split(string(data)); !ok {
		return fmt.Errorf("update %s: article has no frontmatter", path)
	}
	updated := Apply(string(data), check)
	if updated == string(data) {
		return nil
	}
	return fileutil.WriteFileAtomic(path, []byte(updated), 0o644)
}
