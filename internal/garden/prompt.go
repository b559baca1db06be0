package garden

import "strings"

const promptHeader = `あなたは、デジタルガーデンのコンテンツを分類する専門家です。

以下のテキストを分析し、適切なカテゴリに分類してください。

# カテゴリ定義

## insights（洞察・気づき）
- 学びや発見、技術的な理解
- 「〜ということがわかった」「〜に気づいた」
- 問題解決の経験、トラブルシューティング
- 技術記事、チュートリアル的な内容

## ideas（アイデア・構想）
- 新しい発想、将来の計画
- 「〜を作りたい」「〜したらどうか」
- システム設計、アーキテクチャ構想
- 改善案、最適化のアイデア

## weekly-reviews（週次振り返り）
- 定期的な振り返り、進捗報告
- 複数の出来事のまとめ
- 学びの統合、次週の計画
- メタ認知的な内容

# タスク

以下のテキストを分析し、JSON形式で結果を返してください。

**入力テキスト:**
`

const promptFooter = `

# 出力形式

以下のJSON形式で返してください：

{
  "category": "insights | ideas | weekly-reviews のいずれか",
  "title": "魅力的でわかりやすいタイトル（40文字以内）",
  "description": "内容の要約（100文字以内）",
  "tags": ["タグ1", "タグ2", "タグ3"],
  "confidence": 0.95,
  "markdown_content": "構造化されたマークダウンコンテンツ"
}

## 注意事項

1. **タイトル**: キャッチーで検索しやすい
2. **description**: SEO対策も考慮した要約
3. **tags**: 技術名、トピック、分野など（3-5個）
4. **markdown_content**:
   - 見出し（##, ###）を適切に使用
   - コードブロックは言語名付きのフェンスで囲む
   - リストや強調を活用
   - 元のテキストを整形・構造化する
   - オリジナルの内容を保持する

それでは、分析を開始してください。JSON形式のみ返してください（コードブロックで囲まずに）。
`

func prompt(content, sourceFile string) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString(content)
	b.WriteString("\n\n")
	if sourceFile != "" {
		b.WriteString("**ソースファイル:** ")
		b.WriteString(sourceFile)
	}
	b.WriteString(promptFooter)
	return b.String()
}
