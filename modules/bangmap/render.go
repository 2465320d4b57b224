package bangmap

import (
	"fmt"
	"strings"
)

const (
	maxReplyRunes       = 2000
	truncatedReplyRunes = 1990
	truncationSuffix    = "\n...（内容过长已截断）"

	helpText = "欢迎使用全国邦邦地图查询！\n" +
		"请输入：邦邦地图 省份\n" +
		"支持省份全称或二字简称（例如：广东、粤、海外）。"
	loadFailedText = "❌ 邦邦群数据加载失败，请稍后再试。"
)

func unresolvedText(input string) string {
	return fmt.Sprintf("❌ 未识别省份「%s」。请使用标准名称或简称（如：粤、江苏、北京）。", input)
}

func emptyListingText(province string) string {
	return fmt.Sprintf("⚠️ 「%s」暂无登记的邦邦群信息。", province)
}

// renderListings formats one province's listings, collapsing whitespace runs
// inside each entry, and caps the result length.
func renderListings(province string, entries []string) string {
	var builder strings.Builder
	builder.WriteString("📍")
	builder.WriteString(province)
	builder.WriteString(" 的邦邦群如下：")
	for _, entry := range entries {
		builder.WriteString("\n• ")
		builder.WriteString(strings.Join(strings.Fields(entry), " "))
	}

	return truncateReply(builder.String())
}

// truncateReply keeps replies within maxReplyRunes, measured in runes.
func truncateReply(text string) string {
	runes := []rune(text)
	if len(runes) <= maxReplyRunes {
		return text
	}

	return string(runes[:truncatedReplyRunes]) + truncationSuffix
}
