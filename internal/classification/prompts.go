package classification

import (
	"fmt"
	"strings"

	"gardenpipe/internal/textutil"
)

const (
	classifyInputLimit  = 4000
	generateInputLimit  = 3000
	researchDigestLimit = 1000
)

const classificationSystemPrompt = `あなたは日本語コンテンツの分類と構造化を行う専門AIです。

コンテンツを以下の4カテゴリーに分類してください：

1. **insight** - ビジネス洞察、学習内容、技術的発見、戦略的思考
   - 新しい知識や洞察を含む
   - ビジネス価値や実装可能性がある
   - 他者との共有価値がある

2. **diary** - 日記、個人的な振り返り、日常の記録
   - 個人的な体験や感情
   - 日常の出来事や活動
   - 時系列的な記録

3. **resume** - 経歴、スキル、実績、職業経験
   - 技術的スキルや資格
   - 職歴や学歴
   - 実績や成果物

4. **profile** - 個人情報、価値観、興味、目標
   - 個人的な背景や特性
   - 価値観や信念
   - 将来の目標や計画

優先度を以下から選択：
- **urgent**: 緊急性が高く即座の対応が必要
- **high**: 重要で近々対応すべき
- **medium**: 標準的な重要度
- **low**: 参考情報程度

JSON形式で回答してください：
` + "```json" + `
{
  "category": "カテゴリー名",
  "title": "適切なタイトル（50文字以内）",
  "summary": "内容の要約（200文字以内）",
  "priority": "優先度",
  "tags": ["関連するタグのリスト"],
  "confidence": 0.95,
  "reasoning": "分類の根拠説明"
}
` + "```"

func classificationUserPrompt(text string, c Context) string {
	var ctxLines []string
	if c.SourceFile != "" {
		ctxLines = append(ctxLines, "ソースファイル: "+c.SourceFile)
	}
	if c.SourceType != "" {
		ctxLines = append(ctxLines, "入力タイプ: "+c.SourceType)
	}
	if c.Confidence != nil {
		ctxLines = append(ctxLines, fmt.Sprintf("転写信頼度: %.2f", *c.Confidence))
	}
	var contextInfo string
	if len(ctxLines) > 0 {
		contextInfo = "\n\n## コンテキスト情報\n" + strings.Join(ctxLines, "\n")
	}
	return "以下のコンテンツを分析して分類してください：\n\n## 分析対象コンテンツ\n" +
		textutil.Truncate(text, classifyInputLimit, "...") + contextInfo +
		"\n\n上記のシステムプロンプトの指示に従って、適切なカテゴリー、タイトル、要約、優先度、タグを決定し、JSON形式で回答してください。"
}

func generationSystemPrompt(category Category) string {
	tmpl := templates[category]
	var structure strings.Builder
	for i, s := range tmpl.sections {
		if i > 0 {
			structure.WriteByte('\n')
		}
		fmt.Fprintf(&structure, "- %s: ## %s", s.key, s.heading)
	}
	return fmt.Sprintf(`あなたは%sカテゴリーのコンテンツを構造化して生成する専門AIです。

生成するコンテンツの構造：
%s

以下のガイドラインに従ってください：

1. **正確性**: 元のコンテンツの情報を正確に反映する
2. **構造性**: 指定されたセクション構造に従う
3. **簡潔性**: 要点を明確に、冗長さを避ける
4. **実用性**: 読みやすく、アクションにつながる内容
5. **一貫性**: 全体を通じて一貫したトーンとスタイル

JSON形式で回答してください：
`+"```json"+`
{
  "sections": {
    "section_name": "そのセクションの内容"
  },
  "metadata": {
    "word_count": 推定文字数,
    "reading_time": "読了時間（分）",
    "key_points": ["主要ポイントのリスト"]
  }
}
`+"```", category, structure.String())
}

func generationUserPrompt(item Item) string {
	var info []string
	if r := item.Classification; r != nil {
		info = append(info,
			"タイトル: "+r.Title,
			"要約: "+r.Summary,
			"優先度: "+string(r.Priority),
			"タグ: "+strings.Join(r.Tags, ", "))
	}
	if item.SourceFile != "" {
		info = append(info, "ソース: "+item.SourceFile)
	}
	if item.SourceType != "" {
		info = append(info, "入力形式: "+item.SourceType)
	}
	if item.Research != "" {
		info = append(info, "研究情報: あり")
	}

	var b strings.Builder
	b.WriteString("以下のコンテンツを構造化して生成してください：\n\n## 基本情報\n")
	b.WriteString(strings.Join(info, "\n"))
	b.WriteString("\n\n## 元のコンテンツ\n")
	b.WriteString(textutil.Truncate(item.Text, generateInputLimit, "..."))
	b.WriteString("\n\n")
	if item.Research != "" {
		b.WriteString("## 研究情報\n")
		b.WriteString(textutil.Truncate(item.Research, researchDigestLimit, ""))
		b.WriteString("\n\n")
	}
	b.WriteString("上記の情報を基に、指定された構造に従ってコンテンツを生成し、JSON形式で回答してください。")
	return b.String()
}
