// Package markup converts Telegram message HTML to Discord markdown.
package markup

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	mentionRe       = regexp.MustCompile(`@(everyone|here)\b`)
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
)

// inline tags and the Discord marker that wraps their content
var inlineMarkers = map[string]string{
	"b":          "**",
	"strong":     "**",
	"i":          "*",
	"em":         "*",
	"u":          "__",
	"ins":        "__",
	"s":          "~~",
	"strike":     "~~",
	"del":        "~~",
	"tg-spoiler": "||",
}

type openTag struct {
	name   string
	closer string
	start  int    // output offset where the element's content begins
	href   string // links only
}

type translator struct {
	out     strings.Builder
	stack   []openTag
	inPre   bool
	fenced  bool
	lang    string
	preText strings.Builder
}

// Translate converts Telegram-flavoured HTML into Discord markdown. Unknown
// tags are dropped and their text kept. Plain text without markup passes
// through apart from whitespace normalization and mention defusing.
func Translate(src string) string {
	if src == "" {
		return ""
	}

	t := &translator{}
	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()
		switch tt {
		case html.TextToken:
			t.text(tok.Data)
		case html.StartTagToken:
			t.start(tok)
		case html.SelfClosingTagToken:
			if tok.Data == "br" {
				t.text("\n")
			}
		case html.EndTagToken:
			t.end(tok.Data)
		}
	}
	// close anything left open by truncated markup
	for len(t.stack) > 0 {
		t.end(t.stack[len(t.stack)-1].name)
	}
	if t.inPre {
		t.end("pre")
	}

	return normalize(t.out.String())
}

func (t *translator) text(s string) {
	if t.inPre {
		t.preText.WriteString(s)
		return
	}
	t.out.WriteString(s)
}

func (t *translator) start(tok html.Token) {
	name := tok.Data

	if t.inPre {
		if name == "code" {
			if lang := languageOf(tok); lang != "" {
				t.lang = lang
			}
		}
		return
	}

	switch name {
	case "pre":
		t.inPre = true
		t.lang = ""
		t.preText.Reset()
		return
	case "br":
		t.out.WriteString("\n")
		return
	case "code":
		t.push(openTag{name: name, closer: "`"})
		t.out.WriteString("`")
		return
	case "a":
		t.push(openTag{name: name, start: t.out.Len(), href: attr(tok, "href")})
		return
	case "blockquote":
		t.push(openTag{name: name, start: t.out.Len()})
		return
	case "span":
		if strings.Contains(attr(tok, "class"), "tg-spoiler") {
			t.push(openTag{name: name, closer: "||"})
			t.out.WriteString("||")
			return
		}
	}

	if marker, ok := inlineMarkers[name]; ok {
		t.push(openTag{name: name, closer: marker})
		t.out.WriteString(marker)
		return
	}

	// unknown tag: keep its text, drop the markup
	t.push(openTag{name: name})
}

func (t *translator) end(name string) {
	if t.inPre {
		if name != "pre" {
			return
		}
		t.inPre = false
		body := t.preText.String()
		if !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		t.out.WriteString("```" + t.lang + "\n" + body + "```")
		return
	}

	idx := -1
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i].name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	// close inner elements that were never closed explicitly
	for len(t.stack) > idx {
		top := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.closeTag(top)
	}
}

func (t *translator) closeTag(tag openTag) {
	switch tag.name {
	case "a":
		t.closeLink(tag)
	case "blockquote":
		t.closeQuote(tag)
	default:
		t.out.WriteString(tag.closer)
	}
}

func (t *translator) closeLink(tag openTag) {
	full := t.out.String()
	label := full[tag.start:]
	href := strings.TrimSpace(tag.href)

	switch {
	case href == "", strings.HasPrefix(href, "tg://"):
		return
	case label == "" || label == href:
		t.reset(full[:tag.start] + href)
	default:
		t.reset(full[:tag.start] + "[" + label + "](" + href + ")")
	}
}

func (t *translator) closeQuote(tag openTag) {
	full := t.out.String()
	body := strings.TrimRight(full[tag.start:], "\n")
	prefix := full[:tag.start]
	if prefix != "" && !strings.HasSuffix(prefix, "\n") {
		prefix += "\n"
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	t.reset(prefix + strings.Join(lines, "\n") + "\n")
}

func (t *translator) reset(s string) {
	t.out.Reset()
	t.out.WriteString(s)
}

func (t *translator) push(tag openTag) {
	t.stack = append(t.stack, tag)
}

func languageOf(tok html.Token) string {
	for _, class := range strings.Fields(attr(tok, "class")) {
		if lang, ok := strings.CutPrefix(class, "language-"); ok {
			return lang
		}
	}
	return ""
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func normalize(s string) string {
	s = mentionRe.ReplaceAllString(s, "@\u200b$1")
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
