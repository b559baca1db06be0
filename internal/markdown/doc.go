// Package markdown builds and edits the Markdown documents written to the
// garden: a `---` fenced frontmatter block of `key: value` lines followed by
// the body. Body inspection (fenced code blocks, headings) walks a goldmark
// AST rather than matching text.
package markdown
