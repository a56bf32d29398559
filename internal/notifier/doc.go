// Package notifier delivers notification texts to Telegram and owns the
// notification settings row.
//
// # Sender
//
// Sender performs exactly one sendMessage call per Send and reports the outcome
// as a bool. It never returns errors or panics to callers: missing credentials,
// transport failures and non-ok Bot API responses are logged and counted.
// Outbound calls share a token bucket so bursts (for example a deadline scan
// over many tasks) stay within Telegram's limits.
//
// # History
//
// For operator visibility the sender keeps a small in-memory history of recent
// attempts, exposed by the admin HTTP API.
//
// # Settings
//
// SettingsSource reads the first settings row on every call and creates it
// from configured defaults when the table is empty.
package notifier
