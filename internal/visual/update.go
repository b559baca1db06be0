package visual

import (
	"fmt"
	"os"
	"strings"

	"gardenpipe/internal/fileutil"
	"gardenpipe/internal/markdown"
)

// DiagramSection is the heading appended for generated diagrams.
const DiagramSection = "📊 図解"

// Apply adds the thumbnail to the frontmatter and appends the diagram
// section. A document is returned unchanged when there is nothing to add.
func Apply(doc string, e Enhancement) string {
	if e.ThumbnailPath != "" {
		doc = markdown.SetField(doc, "thumbnail", markdown.Quote(e.ThumbnailPath))
	}
	if len(e.Diagrams) == 0 {
		return doc
	}
	var b strings.Builder
	for i, d := range e.Diagrams {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if d.Title != "" {
			fmt.Fprintf(&b, "### %s\n\n", d.Title)
		}
		if d.Description != "" {
			b.WriteString(d.Description)
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "```mermaid\n%s\n```", d.Code)
	}
	return markdown.AppendSection(doc, DiagramSection, b.String())
}

// UpdateFile applies e to the Markdown file at path.
func UpdateFile(path string, e Enhancement) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read article: %w", err)
	}
	updated := Apply(string(data), e)
	if updated == string(data) {
		return nil
	}
	return fileutil.WriteFileAtomic(path, []byte(updated), 0o644)
}
