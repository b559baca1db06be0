package research

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"gardenpipe/internal/textutil"
)

const (
	maxQueries      = 5
	maxConcepts     = 10
	maxClaims       = 5
	conceptRuneCap  = 50
	claimRuneCap    = 100
	marketTrendYear = "2024"
)

var businessKeywords = []string{
	"ai", "人工知能", "machine learning", "機械学習", "データ分析", "クラウド",
	"デジタル変革", "dx", "イノベーション", "スタートアップ", "ビジネスモデル",
	"マーケティング", "セールス", "カスタマー", "顧客体験", "ux", "ui",
	"プロダクト", "製品開発", "アジャイル", "scrum", "devops",
}

var resumeKeywords = []string{"技術", "スキル", "ツール", "プログラミング"}

var (
	sentenceSplit  = regexp.MustCompile(`[。！？\n]`)
	capitalized    = regexp.MustCompile(`[A-Z][a-zA-Z]{2,}`)
	numericClaims  = regexp.MustCompile(`\d+%|\d+億円|\d+万人|20\d{2}年|\d+倍`)
	reportedClaims = regexp.MustCompile(`によると|調査では|発表した|報告されている|明らかになった`)
)

// GenerateQueries derives at most five searches from content. recency is
// the configured default filter for broad queries.
func GenerateQueries(content Content, recency string) []Query {
	if strings.TrimSpace(content.Text) == "" {
		return nil
	}
	concepts := ExtractKeyConcepts(content.Text)
	claims := ExtractFactualClaims(content.Text)

	var queries []Query
	switch content.Category {
	case "insight":
		for _, c := range firstN(concepts, 3) {
			queries = append(queries, Query{
				Query:         c + " 市場トレンド " + marketTrendYear,
				Context:       "Researching market trends for: " + c,
				Priority:      PriorityHigh,
				RecencyFilter: recency,
			})
		}
		for _, claim := range firstN(claims, 2) {
			queries = append(queries, Query{
				Query:         claim + " 事実確認",
				Context:       "Fact-checking claim: " + claim,
				Priority:      PriorityMedium,
				RecencyFilter: "month",
			})
		}
	case "diary":
		if len(concepts) > 0 {
			queries = append(queries, Query{
				Query:         concepts[0] + " 最新情報",
				Context:       "Current information about: " + concepts[0],
				Priority:      PriorityLow,
				RecencyFilter: "week",
			})
		}
	case "resume":
		for _, c := range firstN(concepts, 2) {
			if !containsAny(strings.ToLower(c), resumeKeywords) {
				continue
			}
			queries = append(queries, Query{
				Query:         c + " 業界標準 要求スキル",
				Context:       "Industry standards for: " + c,
				Priority:      PriorityMedium,
				RecencyFilter: "month",
			})
		}
	}
	if utf8.RuneCountInString(content.Title) > 10 {
		queries = append(queries, Query{
			Query:         content.Title + " 関連情報",
			Context:       "General research for: " + content.Title,
			Priority:      PriorityLow,
			RecencyFilter: recency,
		})
	}
	return firstN(queries, maxQueries)
}

// ExtractKeyConcepts finds phrases around business keywords (two words on
// either side) followed by capitalized names, at most ten in total.
func ExtractKeyConcepts(text string) []string {
	var concepts []string
	add := func(c string) {
		for _, existing := range concepts {
			if existing == c {
				return
			}
		}
		concepts = append(concepts, c)
	}
	for _, sentence := range sentenceSplit.Split(text, -1) {
		lower := strings.ToLower(sentence)
		for _, keyword := range businessKeywords {
			if !strings.Contains(lower, keyword) {
				continue
			}
			words := strings.Fields(sentence)
			for i, word := range words {
				if !strings.Contains(strings.ToLower(word), keyword) {
					continue
				}
				concept := strings.Join(words[max(0, i-2):min(len(words), i+3)], " ")
				if utf8.RuneCountInString(concept) > 5 {
					add(textutil.Truncate(concept, conceptRuneCap, ""))
				}
				break
			}
		}
	}
	for _, loc := range capitalized.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]
		if len(word) > 3 && standsAlone(text, loc[0], loc[1]) {
			add(word)
		}
	}
	return firstN(concepts, maxConcepts)
}

// ExtractFactualClaims returns up to five distinct sentences that carry
// figures (percentages, yen amounts, headcounts, years, multipliers) or
// cite a report.
func ExtractFactualClaims(text string) []string {
	sentences := sentenceSplit.Split(text, -1)
	var claims []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = textutil.Truncate(s, claimRuneCap, "")
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		claims = append(claims, s)
	}
	for _, sentence := range sentences {
		s := strings.TrimSpace(sentence)
		if numericClaims.MatchString(s) && utf8.RuneCountInString(s) > 10 {
			add(s)
		}
	}
	for _, sentence := range sentences {
		s := strings.TrimSpace(sentence)
		if reportedClaims.MatchString(s) && utf8.RuneCountInString(s) > 15 {
			add(s)
		}
	}
	return firstN(claims, maxClaims)
}

// standsAlone reports whether text[start:end] is not glued to other
// alphabetic runes such as accented Latin letters. Japanese script counts as
// a separator so names written inline with kana or kanji still qualify.
func standsAlone(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if joinsWord(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if joinsWord(r) {
			return false
		}
	}
	return true
}

func joinsWord(r rune) bool {
	if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) || r == 'ー' {
		return false
	}
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
