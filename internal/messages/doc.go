// Package messages renders CRM records into Telegram HTML notification texts.
//
// Every function is pure: the same input and location always give the same
// text. User-supplied values are HTML-escaped; only <b> and <i> markup is emitted.
package messages
