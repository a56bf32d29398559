// Package scheduler triggers named jobs on cron or interval schedules in a
// configured timezone. Each run gets its own timeout and panic recovery;
// runs of the same job are not serialized.
package scheduler
