package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

var durationTerm = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)([a-zµμ]+)`)

// ParseDuration accepts everything time.ParseDuration does plus the units d (24h)
// and w (7d), freely combined: "7d", "1w2d3h", "1.5d", "-2w".
func ParseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("duration is required")
	}
	if !strings.ContainsAny(s, "dw") {
		return time.ParseDuration(s)
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}

	var total time.Duration
	for s != "" {
		term := durationTerm.FindStringSubmatch(s)
		if term == nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		s = s[len(term[0]):]

		value, err := strconv.ParseFloat(term[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		switch term[2] {
		case "d":
			total += time.Duration(value * float64(day))
		case "w":
			total += time.Duration(value * float64(week))
		default:
			d, err := time.ParseDuration(term[1] + term[2])
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
			}
			total += d
		}
	}
	if negative {
		total = -total
	}
	return total, nil
}
