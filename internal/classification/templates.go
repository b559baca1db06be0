package classification

import (
	"fmt"
	"strings"
	"time"

	"gardenpipe/internal/markdown"
)

type section struct {
	key     string
	heading string
}

type layout struct {
	sections   []section
	extra      func(*markdown.Frontmatter, *Result)
	components []string
}

const insightComponentBlock = "\n\n## コンポーネント\n\n<ImpactAnalysis />\n\n<MermaidDiagram />\n\n"

var templates = map[Category]layout{
	CategoryInsight: {
		sections: []section{
			{"overview", "概要"},
			{"details", "詳細"},
			{"implications", "示唆"},
			{"action_items", "アクション"},
			{"references", "参考"},
		},
		extra: func(f *markdown.Frontmatter, r *Result) {
			f.Block("impact",
				"business_value: null",
				"implementation_feasibility: null",
				"social_impact: null",
				"strategic_alignment: null")
			f.Raw("confidence", fmt.Sprintf("%.2f", r.Confidence))
		},
		components: []string{"ImpactAnalysis", "MermaidDiagram"},
	},
	CategoryDiary: {
		sections: []section{
			{"reflection", "振り返り"},
			{"events", "出来事"},
			{"thoughts", "考え"},
			{"learnings", "学び"},
			{"tomorrow", "明日に向けて"},
		},
		extra: func(f *markdown.Frontmatter, _ *Result) {
			f.Raw("mood", "null").Raw("location", "null").Raw("weather", "null")
		},
	},
	CategoryResume: {
		sections: []section{
			{"experience", "経験"},
			{"skills", "スキル"},
			{"achievements", "実績"},
			{"technologies", "技術"},
		},
		extra: func(f *markdown.Frontmatter, _ *Result) {
			f.Raw("skill_level", "null").Raw("years_experience", "null").Raw("certification", "null")
		},
	},
	CategoryProfile: {
		sections: []section{
			{"background", "背景"},
			{"interests", "興味"},
			{"values", "価値観"},
			{"goals", "目標"},
		},
		extra: func(f *markdown.Frontmatter, _ *Result) {
			f.Quoted("visibility", "private")
		},
	},
}

var fallbackSections = []string{"核心的な洞察", "詳細", "実践的示唆", "まとめ"}

type processingInfo struct {
	sessionID   string
	generatedAt time.Time
	model       string
}

func renderFrontmatter(category Category, r *Result, source string, p processingInfo) string {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	f := &markdown.Frontmatter{}
	f.Quoted("title", r.Title).
		Quoted("description", r.Summary).
		Quoted("category", string(category)).
		Raw("date", p.generatedAt.Format(time.DateOnly)).
		JSON("tags", tags).
		Quoted("priority", string(r.Priority)).
		Quoted("source", source)
	if tmpl, ok := templates[category]; ok && tmpl.extra != nil {
		tmpl.extra(f, r)
	}
	f.Block("processing",
		"session_id: "+markdown.Quote(p.sessionID),
		"generated_at: "+markdown.Quote(p.generatedAt.Format(time.RFC3339)),
		"model: "+markdown.Quote(p.model))
	return f.Render()
}

// renderSections writes each known section in template order, skipping
// empty ones, and returns the body with the headings that were emitted.
func renderSections(category Category, values map[string]string) (string, []string) {
	tmpl := templates[category]
	var b strings.Builder
	var emitted []string
	for _, s := range tmpl.sections {
		content := strings.TrimSpace(values[s.key])
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", s.heading, content)
		emitted = append(emitted, s.key)
	}
	if category == CategoryInsight {
		b.WriteString(insightComponentBlock)
	}
	return b.String(), emitted
}

func renderFallbackBody(text string, r *Result) string {
	bodies := []string{
		r.Summary,
		strings.TrimSpace(text),
		"このコンテンツから得られる実践的な示唆は今後整理予定です。",
		r.Title,
	}
	var b strings.Builder
	for i, heading := range fallbackSections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", heading, bodies[i])
	}
	return b.String()
}
