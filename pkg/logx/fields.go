package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// Field mutates a zerolog event. Fields are applied in order; later keys win.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field {
	return func(e *zerolog.Event) { e.Int64(k, v) }
}
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Component tags every line of a derived logger with comp=name.
func Component(name string) Field { return String("comp", name) }

// Err logs err under "err" with bot tokens scrubbed. A nil error adds nothing.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Str(zerolog.ErrorFieldName, Redact(err.Error()))
		}
	}
}

// Secret logs only whether v is set and, for longer values, its last 4 chars.
func Secret(k, v string) Field {
	return func(e *zerolog.Event) { e.Str(k, MaskSecret(v)) }
}
