package telegram

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode/utf16"
)

// RenderHTML rebuilds Telegram's HTML form of a message from its plain text
// and entity list. Entity offsets and lengths are in UTF-16 code units.
// Overlapping entities are split so the output always nests.
func RenderHTML(text string, entities []MessageEntity) string {
	if len(entities) == 0 {
		return html.EscapeString(text)
	}

	sorted := make([]MessageEntity, 0, len(entities))
	for _, e := range entities {
		if e.Length > 0 && openTag(e) != "" {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Offset != sorted[j].Offset {
			return sorted[i].Offset < sorted[j].Offset
		}
		return sorted[i].Length > sorted[j].Length
	})

	units := utf16.Encode([]rune(text))
	var b strings.Builder
	var stack []MessageEntity
	next := 0

	for pos := 0; ; pos++ {
		stack = closeEnded(&b, stack, pos)
		for next < len(sorted) && sorted[next].Offset <= pos {
			e := sorted[next]
			next++
			if e.Offset+e.Length <= pos {
				continue
			}
			b.WriteString(openTag(e))
			stack = append(stack, e)
		}
		if pos >= len(units) {
			break
		}

		r := rune(units[pos])
		if utf16.IsSurrogate(r) && pos+1 < len(units) {
			r = utf16.DecodeRune(r, rune(units[pos+1]))
			pos++
		}
		b.WriteString(html.EscapeString(string(r)))
	}

	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteString(closeTag(stack[i]))
	}
	return b.String()
}

// closeEnded closes every entity that ends at or before pos, reopening the
// ones nested above it that are still running.
func closeEnded(b *strings.Builder, stack []MessageEntity, pos int) []MessageEntity {
	for {
		idx := -1
		for i, e := range stack {
			if e.Offset+e.Length <= pos {
				idx = i
				break
			}
		}
		if idx < 0 {
			return stack
		}

		for i := len(stack) - 1; i >= idx; i-- {
			b.WriteString(closeTag(stack[i]))
		}
		var reopen []MessageEntity
		for _, e := range stack[idx+1:] {
			if e.Offset+e.Length > pos {
				reopen = append(reopen, e)
			}
		}
		stack = append(stack[:idx], reopen...)
		for _, e := range reopen {
			b.WriteString(openTag(e))
		}
	}
}

func openTag(e MessageEntity) string {
	switch e.Type {
	case "bold":
		return "<b>"
	case "italic":
		return "<i>"
	case "underline":
		return "<u>"
	case "strikethrough":
		return "<s>"
	case "spoiler":
		return `<span class="tg-spoiler">`
	case "code":
		return "<code>"
	case "pre":
		if e.Language != "" {
			return fmt.Sprintf(`<pre><code class="language-%s">`, html.EscapeString(e.Language))
		}
		return "<pre>"
	case "text_link":
		return fmt.Sprintf(`<a href="%s">`, html.EscapeString(e.URL))
	case "text_mention":
		if e.User != nil {
			return fmt.Sprintf(`<a href="tg://user?id=%d">`, e.User.ID)
		}
	case "blockquote", "expandable_blockquote":
		return "<blockquote>"
	}
	return ""
}

func closeTag(e MessageEntity) string {
	switch e.Type {
	case "bold":
		return "</b>"
	case "italic":
		return "</i>"
	case "underline":
		return "</u>"
	case "strikethrough":
		return "</s>"
	case "spoiler":
		return "</span>"
	case "code":
		return "</code>"
	case "pre":
		if e.Language != "" {
			return "</code></pre>"
		}
		return "</pre>"
	case "text_link", "text_mention":
		return "</a>"
	case "blockquote", "expandable_blockquote":
		return "</blockquote>"
	}
	return ""
}
