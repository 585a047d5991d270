package attendance

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // display zone must resolve on hosts without a zoneinfo database
)

// DisplayLayout renders capture times as "December 15, 2024 at 8:53:23 PM EST".
const DisplayLayout = "January 2, 2006 at 3:04:05 PM MST"

// NotAvailable is shown when no attendance instant could be determined.
const NotAvailable = "N/A"

const dateKeyLayout = "2006-01-02"

// Layouts tried after " at " has been removed from the input.
var humanLayouts = []string{
	"January 2, 2006 3:04:05 PM -0700",
	"January 2, 2006 3:04:05 PM MST",
	"January 2, 2006 3:04:05 PM",
	"January 2, 2006 3:04 PM -0700",
	"January 2, 2006 3:04 PM MST",
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04:05 PM -0700",
	"Jan 2, 2006 3:04:05 PM MST",
	"Jan 2, 2006 3:04:05 PM",
	"January 2, 2006, 3:04:05 PM -0700",
	"January 2, 2006, 3:04:05 PM",
	"Jan 2, 2006, 3:04:05 PM -0700",
	"Jan 2, 2006, 3:04:05 PM",
	"1/2/2006, 3:04:05 PM -0700",
	"1/2/2006, 3:04:05 PM",
	"1/2/2006 3:04:05 PM -0700",
	"1/2/2006 3:04:05 PM",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"January 2, 2006",
	"2006-01-02",
}

// US zone abbreviations are rewritten to numeric offsets so they parse the
// same regardless of the display zone.
var usZones = map[string]string{
	"EST": "-0500", "EDT": "-0400",
	"CST": "-0600", "CDT": "-0500",
	"MST": "-0700", "MDT": "-0600",
	"PST": "-0800", "PDT": "-0700",
}

// Matches trailing "UTC-5", "GMT+05:30", "UTC+0530".
var gmtOffset = regexp.MustCompile(`(?:UTC|GMT)([+-])(\d{1,2})(?::?(\d{2}))?$`)

// ParseTimestamp extracts an instant from a stored timestamp string.
// Times without zone information are interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	s = normalizeTimestamp(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}

	s = strings.Replace(s, " at ", " ", 1)
	s = rewriteZone(s)
	for _, layout := range humanLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDisplay renders t in loc using DisplayLayout.
func FormatDisplay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DisplayLayout)
}

// DateKey is the calendar date of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateKeyLayout)
}

func normalizeTimestamp(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u00a0', '\u202f', '\t':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func rewriteZone(s string) string {
	if i := strings.LastIndexByte(s, ' '); i >= 0 {
		if off, ok := usZones[strings.ToUpper(s[i+1:])]; ok {
			return s[:i+1] + off
		}
	}
	m := gmtOffset.FindStringSubmatchIndex(s)
	if m == nil {
		return s
	}
	sign := s[m[2]:m[3]]
	hours, _ := strconv.Atoi(s[m[4]:m[5]])
	minutes := 0
	if m[6] >= 0 {
		minutes, _ = strconv.Atoi(s[m[6]:m[7]])
	}
	return s[:m[0]] + fmt.Sprintf("%s%02d%02d", sign, hours, minutes)
}

// instant resolves the event's capture time, preferring RecordedAt.
func (e Event) instant(loc *time.Location) (time.Time, bool) {
	if !e.RecordedAt.IsZero() {
		return e.RecordedAt, true
	}
	return ParseTimestamp(e.Timestamp, loc)
}
