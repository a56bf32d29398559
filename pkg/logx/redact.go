package logx

import (
	"regexp"
	"strings"
)

// Bot API URLs embed the token: https://api.telegram.org/bot<id>:<secret>/method.
var tokenRe = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{20,}`)

// Redact replaces anything shaped like a Telegram bot token in s.
func Redact(s string) string {
	if !strings.Contains(s, ":") {
		return s
	}
	return tokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		id, _, _ := strings.Cut(tok, ":")
		return id + ":***"
	})
}

// MaskSecret renders a secret for logs: "" stays "<unset>", short values are
// fully hidden, longer ones keep their last 4 chars.
func MaskSecret(v string) string {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return "<unset>"
	case len(v) <= 8:
		return "****"
	default:
		return "****" + v[len(v)-4:]
	}
}
