package tgui

import (
	"html"
	"strings"
)

// H represents HTML that is safe to pass to Telegram when ParseMode="HTML".
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw marks a string as already-safe HTML. Use sparingly.
func Raw(s string) H { return H(s) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// JoinH joins non-empty safe HTML parts with sep.
func JoinH(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, sep))
}

// Builder accumulates message lines.
type Builder struct {
	lines []string
}

// Line appends one line made of the given parts (concatenated as-is).
func (b *Builder) Line(parts ...H) *Builder {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.String())
	}
	b.lines = append(b.lines, sb.String())
	return b
}

// Blank appends an empty line unless the message is empty or already ends with one.
func (b *Builder) Blank() *Builder {
	if n := len(b.lines); n > 0 && b.lines[n-1] != "" {
		b.lines = append(b.lines, "")
	}
	return b
}

func (b *Builder) String() string {
	return strings.TrimRight(strings.Join(b.lines, "\n"), "\n")
}
