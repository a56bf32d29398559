package tgui

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// TruncRunes returns s truncated to at most n runes, with an ellipsis when cut.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n-1 {
			return s[:i] + "…"
		}
		count++
	}
	return s
}

var tagRe = regexp.MustCompile(`<(/?)([a-zA-Z-]+)[^>]*>`)

// closeReserve is room kept for the ellipsis and closing tags.
const closeReserve = 32

// TruncHTML cuts Telegram HTML to at most n runes without splitting a tag or
// an entity. It prefers the last line break in the kept half and closes tags
// left open by the cut. n must exceed closeReserve.
func TruncHTML(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= closeReserve {
		return TruncRunes(html.UnescapeString(tagRe.ReplaceAllString(s, "")), n)
	}

	head := s
	count := 0
	for i := range s {
		if count == n-closeReserve {
			head = s[:i]
			break
		}
		count++
	}
	if i := strings.LastIndexByte(head, '\n'); i >= len(head)/2 {
		head = head[:i]
	}
	if lt := strings.LastIndexByte(head, '<'); lt > strings.LastIndexByte(head, '>') {
		head = head[:lt]
	}
	if amp := strings.LastIndexByte(head, '&'); amp > strings.LastIndexByte(head, ';') {
		head = head[:amp]
	}

	var open []string
	for _, m := range tagRe.FindAllStringSubmatch(head, -1) {
		name := strings.ToLower(m[2])
		if m[1] == "" {
			open = append(open, name)
			continue
		}
		if k := len(open) - 1; k >= 0 && open[k] == name {
			open = open[:k]
		}
	}
	var sb strings.Builder
	sb.WriteString(head)
	sb.WriteString("…")
	for i := len(open) - 1; i >= 0; i-- {
		sb.WriteString("</" + open[i] + ">")
	}
	return sb.String()
}
