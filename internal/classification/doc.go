// Package classification sorts captured notes into the insight, diary,
// resume and profile categories and renders category-specific Markdown.
//
// Model responses pass through a JSON Schema decoder. The only coercions
// applied afterwards are: an unknown priority becomes "medium", scalar tags
// become a one-element list, and confidence is clamped to [0,1]. An unknown
// category is rejected with ErrInvalidCategory.
package classification
