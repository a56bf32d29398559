package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a normalized schedule string.
//
// Accepted forms:
//   - cron: "0 * * * *", "@hourly", "@every 30m", or anything prefixed "cron:"
//   - Go duration interval: "55m", "2h30m"
//   - HH:MM interval: "01:30" means every 1h30m
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}
	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		if rest == "" {
			return ParsedSpec{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: rest}, nil
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}
	if reHHMM.MatchString(s) {
		d, err := parseHHMMDuration(s)
		if err != nil {
			return ParsedSpec{}, err
		}
		return ParsedSpec{Kind: SpecInterval, Every: d}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q (use cron like '0 * * * *', HH:MM like '02:30', or a duration like '55m')", raw)
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

// parseClock parses a wall-clock "HH:MM" (00:00..23:59).
func parseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 || len(ms) != 2 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
