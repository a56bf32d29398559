// Package reminder implements the time-driven notification jobs: the deadline
// scanner (reminders N hours before a task is due) and the daily summary.
//
// Both jobs re-read the notification settings at the start of every run and
// absorb every failure into their result value.
package reminder
