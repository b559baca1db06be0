package visual

import (
	"strings"

	"gardenpipe/internal/textutil"
)

const thumbnailPreview = 200

var categoryStyles = map[string]string{
	"insight":       "modern tech illustration with light bulb and circuit patterns, blue and white color scheme, minimalist design",
	"idea":          "creative brainstorming illustration with flowing connections and nodes, purple and cyan gradient, abstract style",
	"weekly-review": "calendar and progress chart illustration, organized grid layout, green and orange accents, professional style",
	"diary":         "soft watercolor illustration of everyday scenery, warm pastel palette, calm atmosphere",
}

// ThumbnailPrompt builds the Imagen prompt for an article. The style is
// keyed by category; the content preview is the first 200 runes on one line.
func ThumbnailPrompt(content, title, category string) string {
	style, ok := categoryStyles[strings.TrimSuffix(category, "s")]
	if !ok {
		style = "modern tech illustration"
	}
	preview := strings.ReplaceAll(textutil.Truncate(content, thumbnailPreview, ""), "\n", " ")
	return "Create a thumbnail image for a technical blog post.\n\n" +
		"Title: " + title + "\n" +
		"Category: " + category + "\n" +
		"Content preview: " + preview + "\n\n" +
		"Style: " + style + "\n\n" +
		"Requirements:\n" +
		"- 16:9 aspect ratio\n" +
		"- Professional and clean design\n" +
		"- Suitable for tech blog thumbnail\n" +
		"- No text or Japanese characters in the image\n" +
		"- Focus on visual metaphors related to the content\n"
}
