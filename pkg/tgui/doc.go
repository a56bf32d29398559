// Package tgui holds small helpers for composing Telegram HTML messages.
//
// Values of type H are already escaped and safe to send with ParseMode="HTML".
package tgui
