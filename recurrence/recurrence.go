// ABOUTME: Pure recurrence-rule engine for chore schedules
// ABOUTME: Converts between structured recurrence configs and RRULE text, and projects occurrences
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hearthfam/hearth/models"
)

// dtstartLayout matches the UTC DTSTART encoding used in persisted rules,
// e.g. DTSTART:20260823T000000Z.
const dtstartLayout = "20060102T150405Z"

// weekdays indexes rrule weekdays by the engine's 0=Monday..6=Sunday
// convention, which matches the RRULE BYDAY encoding.
var weekdays = [7]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// ToRRuleWeekday converts an engine weekday index (0=Monday..6=Sunday) to an
// rrule weekday. Out-of-range input wraps into 0..6.
func ToRRuleWeekday(i int) rrule.Weekday {
	return weekdays[((i%7)+7)%7]
}

// FromRRuleWeekday is the exact inverse of ToRRuleWeekday.
func FromRRuleWeekday(w rrule.Weekday) int {
	return w.Day()
}

// ToTimeWeekday converts an engine weekday index (0=Monday) to time.Weekday
// (0=Sunday). Inverse of FromTimeWeekday for all 7 values.
func ToTimeWeekday(i int) time.Weekday {
	return time.Weekday((((i % 7) + 7) % 7 + 1) % 7)
}

// FromTimeWeekday converts a time.Weekday (0=Sunday) to the engine's
// 0=Monday index.
func FromTimeWeekday(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// Generate encodes a structured recurrence config as RRULE text anchored at
// anchor. Returns "" for type none. Biweekly is weekly with interval 2.
func Generate(cfg models.RecurrenceConfig, anchor time.Time) string {
	opt := rrule.ROption{Dtstart: anchor.UTC()}

	switch cfg.Type {
	case models.RecurrenceDaily:
		opt.Freq = rrule.DAILY
	case models.RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
	case models.RecurrenceBiweekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
	case models.RecurrenceMonthly:
		opt.Freq = rrule.MONTHLY
		if cfg.DayOfMonth != nil {
			opt.Bymonthday = []int{*cfg.DayOfMonth}
		}
	default:
		return ""
	}

	if cfg.Weekday != nil && (cfg.Type == models.RecurrenceWeekly || cfg.Type == models.RecurrenceBiweekly) {
		opt.Byweekday = []rrule.Weekday{ToRRuleWeekday(*cfg.Weekday)}
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return ""
	}

	return fmt.Sprintf("DTSTART:%s\nRRULE:%s",
		anchor.UTC().Format(dtstartLayout), r.OrigOptions.RRuleString())
}

// ParseConfig maps RRULE text back to a structured config. Empty, garbage,
// or non-representable rules yield type none; this never fails.
func ParseConfig(rule string) models.RecurrenceConfig {
	none := models.RecurrenceConfig{Type: models.RecurrenceNone}

	opt, _, err := parseRule(rule)
	if err != nil {
		return none
	}

	cfg := models.RecurrenceConfig{}
	switch opt.Freq {
	case rrule.DAILY:
		if opt.Interval > 1 {
			return none
		}
		cfg.Type = models.RecurrenceDaily
	case rrule.WEEKLY:
		switch {
		case opt.Interval <= 1:
			cfg.Type = models.RecurrenceWeekly
		case opt.Interval == 2:
			cfg.Type = models.RecurrenceBiweekly
		default:
			return none
		}
		if len(opt.Byweekday) > 0 {
			wd := FromRRuleWeekday(opt.Byweekday[0])
			cfg.Weekday = &wd
		}
	case rrule.MONTHLY:
		if opt.Interval > 1 {
			return none
		}
		cfg.Type = models.RecurrenceMonthly
		if len(opt.Bymonthday) > 0 {
			dom := opt.Bymonthday[0]
			cfg.DayOfMonth = &dom
		}
	default:
		return none
	}

	return cfg
}

// dayNames indexes human weekday names by the engine convention.
var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Describe renders a rule as short human text. Empty rules are "one time";
// anything the structured config can't represent is "custom recurrence".
func Describe(rule string) string {
	if strings.TrimSpace(rule) == "" {
		return "one time"
	}

	cfg := ParseConfig(rule)
	switch cfg.Type {
	case models.RecurrenceDaily:
		return "daily"
	case models.RecurrenceWeekly:
		if cfg.Weekday != nil {
			return "weekly on " + dayNames[*cfg.Weekday]
		}
		return "weekly"
	case models.RecurrenceBiweekly:
		if cfg.Weekday != nil {
			return "every 2 weeks on " + dayNames[*cfg.Weekday]
		}
		return "every 2 weeks"
	case models.RecurrenceMonthly:
		if cfg.DayOfMonth != nil {
			return fmt.Sprintf("monthly on day %d", *cfg.DayOfMonth)
		}
		return "monthly"
	default:
		return "custom recurrence"
	}
}

// Next returns the first occurrence strictly after the given time. The
// second return is false for empty/unparseable rules or exhausted series.
func Next(rule string, after time.Time) (time.Time, bool) {
	r, err := buildRRule(rule, after)
	if err != nil {
		return time.Time{}, false
	}

	next := r.After(after.UTC(), false)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// NextN returns up to n occurrences strictly after the given time, ascending.
// Empty/unparseable rules yield an empty slice, never an error.
func NextN(rule string, after time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)

	r, err := buildRRule(rule, after)
	if err != nil {
		return out
	}

	cursor := after.UTC()
	for len(out) < n {
		next := r.After(cursor, false)
		if next.IsZero() {
			break
		}
		out = append(out, next)
		cursor = next
	}
	return out
}

// parseRule splits the persisted "DTSTART:...\nRRULE:..." encoding (either
// line optional) and parses the rule portion.
func parseRule(rule string) (*rrule.ROption, time.Time, error) {
	rulePart := ""
	var dtstart time.Time

	for _, line := range strings.Split(strings.TrimSpace(rule), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "DTSTART"):
			_, value, found := strings.Cut(line, ":")
			if !found {
				return nil, time.Time{}, fmt.Errorf("malformed DTSTART line")
			}
			ts, err := time.Parse(dtstartLayout, value)
			if err != nil {
				return nil, time.Time{}, fmt.Errorf("failed to parse DTSTART: %w", err)
			}
			dtstart = ts
		case strings.HasPrefix(line, "RRULE:"):
			rulePart = strings.TrimPrefix(line, "RRULE:")
		case line != "" && rulePart == "":
			// Bare rule without the RRULE: prefix.
			rulePart = line
		}
	}

	if rulePart == "" {
		return nil, time.Time{}, fmt.Errorf("no rule found")
	}

	opt, err := rrule.StrToROption(rulePart)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse rule: %w", err)
	}
	return opt, dtstart, nil
}

func buildRRule(rule string, fallbackStart time.Time) (*rrule.RRule, error) {
	opt, dtstart, err := parseRule(rule)
	if err != nil {
		return nil, err
	}

	if dtstart.IsZero() {
		dtstart = fallbackStart.UTC()
	}
	opt.Dtstart = dtstart

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule: %w", err)
	}
	return r, nil
}
