package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxTimeout is the longest communication timeout Discord accepts.
const maxTimeout = 28 * 24 * time.Hour

var durationRegex = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseDuration parses a moderator-supplied duration like "10s", "30m", "2h"
// or "7d". Anything past the platform's 28-day ceiling is rejected.
func ParseDuration(value string) (time.Duration, error) {
	match := durationRegex.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return 0, errors.New("invalid duration format, expected e.g. 1h, 30m, 2d, 10s")
	}

	amount, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, err
	}

	var unit time.Duration
	switch match[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}

	duration := time.Duration(amount) * unit
	if duration > maxTimeout {
		return 0, errors.New("duration exceeds the 28-day limit")
	}
	return duration, nil
}

// FormatDuration renders a duration as "1d 2h 3m 4s", omitting zero parts.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
