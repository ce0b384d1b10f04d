package nlp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISODate is the layout every extracted due date is rendered in.
const ISODate = "2006-01-02"

// maxOffsetDays bounds "in N days/weeks" so absurd inputs are ignored rather
// than overflowing the calendar.
const maxOffsetDays = 36500

// RelativeKeyword is a named date expression with its spelling variants and
// the rule that turns it into a calendar day.
type RelativeKeyword struct {
	Name     string
	Variants []string
	Resolve  func(base time.Time) time.Time
}

// DateTable recognizes relative and absolute date expressions. Keywords are
// scanned in order; the first hit wins.
type DateTable struct {
	keywords []RelativeKeyword
	patterns []*regexp.Regexp
	strip    []*regexp.Regexp
}

var (
	inDaysPattern  = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(days?|weeks?|wks?)\b`)
	nextDayPattern = regexp.MustCompile(`(?i)\b(?:next|nxt)\s+([a-z]+)\b`)
	onDayPattern   = regexp.MustCompile(`(?i)\b(?:on\s+|by\s+|this\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	isoPattern   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashPattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	dashPattern  = regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})-(\d{4})\b`)
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "sundy": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "mondy": time.Monday, "monady": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday, "tusday": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "wednsday": time.Wednesday, "wensday": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thrusday": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "fridy": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "saterday": time.Saturday,
}

func NewDateTable(keywords ...RelativeKeyword) *DateTable {
	t := &DateTable{keywords: keywords}
	for _, k := range keywords {
		t.patterns = append(t.patterns, phrasePattern(k.Variants))
	}
	t.strip = append([]*regexp.Regexp{}, t.patterns...)
	t.strip = append(t.strip, inDaysPattern, isoPattern, slashPattern, dashPattern)
	return t
}

var defaultDates = NewDateTable(
	// Longer expression first so "day after tomorrow" is not read as "tomorrow".
	RelativeKeyword{"day_after_tomorrow", []string{"day after tomorrow", "dayaftertomorrow", "day aftr tmrw", "day after tmrw", "overmorrow"}, func(b time.Time) time.Time { return b.AddDate(0, 0, 2) }},
	RelativeKeyword{"today", []string{"today", "tody", "todya", "2day", "tod", "tday", "2dy", "tonight"}, func(b time.Time) time.Time { return b }},
	RelativeKeyword{"tomorrow", []string{"tomorrow", "tomorrw", "tmrw", "tmw", "tomorow", "tmmrw", "tomrw", "tmrrw", "2moro", "2morrow"}, func(b time.Time) time.Time { return b.AddDate(0, 0, 1) }},
	RelativeKeyword{"next_week", []string{"next week", "nxt week", "next wk", "nxtweek", "nxt wk", "nxt wek", "next weeek"}, func(b time.Time) time.Time { return b.AddDate(0, 0, 7) }},
	RelativeKeyword{"this_week", []string{"this week", "thisweek", "this wk", "ths week", "ths wk", "dis week"}, upcomingFriday},
)

// ParseRelativeDate resolves the first date expression in text against base
// and returns it as YYYY-MM-DD.
func ParseRelativeDate(text string, base time.Time) (string, bool) {
	return defaultDates.Parse(text, base)
}

func (t *DateTable) Parse(text string, base time.Time) (string, bool) {
	day := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, base.Location())
	lower := strings.ToLower(text)

	for i, k := range t.keywords {
		if t.patterns[i].MatchString(lower) {
			return k.Resolve(day).Format(ISODate), true
		}
	}
	if m := inDaysPattern.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			if strings.HasPrefix(m[2], "w") {
				n *= 7
			}
			if n <= maxOffsetDays {
				return day.AddDate(0, 0, n).Format(ISODate), true
			}
		}
	}
	for _, m := range nextDayPattern.FindAllStringSubmatch(lower, -1) {
		if wd, ok := weekdayNames[m[1]]; ok {
			return nextWeekday(day, wd).Format(ISODate), true
		}
	}
	if m := onDayPattern.FindStringSubmatch(lower); m != nil {
		return nextWeekday(day, weekdayNames[m[1]]).Format(ISODate), true
	}
	return parseAbsoluteDate(lower)
}

// Strip removes every date expression the table recognizes from text.
func (t *DateTable) Strip(text string) string {
	for _, p := range t.strip {
		text = p.ReplaceAllString(text, " ")
	}
	text = nextDayPattern.ReplaceAllStringFunc(text, func(s string) string {
		m := nextDayPattern.FindStringSubmatch(strings.ToLower(s))
		if _, ok := weekdayNames[m[1]]; ok {
			return " "
		}
		return s
	})
	return onDayPattern.ReplaceAllString(text, " ")
}

// nextWeekday returns the first wd strictly after day.
func nextWeekday(day time.Time, wd time.Weekday) time.Time {
	ahead := (int(wd) - int(day.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return day.AddDate(0, 0, ahead)
}

// upcomingFriday returns the Friday of the current week; on Friday that is
// the same day, on the weekend the following Friday.
func upcomingFriday(day time.Time) time.Time {
	ahead := (int(time.Friday) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, ahead)
}

func parseAbsoluteDate(text string) (string, bool) {
	if m := isoPattern.FindStringSubmatch(text); m != nil {
		return calendarDate(m[1], m[2], m[3])
	}
	if m := slashPattern.FindStringSubmatch(text); m != nil {
		return calendarDate(m[3], m[2], m[1])
	}
	if m := dashPattern.FindStringSubmatch(text); m != nil {
		return calendarDate(m[3], m[2], m[1])
	}
	return "", false
}

// calendarDate rejects dates that do not exist, such as 2024-02-30.
func calendarDate(year, month, day string) (string, bool) {
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return "", false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != mo {
		return "", false
	}
	return t.Format(ISODate), true
}
