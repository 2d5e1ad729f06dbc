package domain

import (
	"fmt"
	"strings"
	"time"
)

var releaseLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01",
	"2006",
}

// FormatReleaseDate 把 ISO 日期格式化为 "March 4th, 2010" 的展示文案。
func FormatReleaseDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Unknown release date"
	}
	for _, layout := range releaseLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return fmt.Sprintf("%s %d%s, %d", t.Month(), t.Day(), ordinalSuffix(t.Day()), t.Year())
	}
	return "Invalid release date"
}

func ordinalSuffix(n int) string {
	if n > 3 && n < 21 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
