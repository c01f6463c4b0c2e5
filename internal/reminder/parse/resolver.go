package parse

import (
	"regexp"
	"time"
)

// Options tunes the resolver. The zero value is usable.
type Options struct {
	// DefaultHour is the hour of day used when an expression names a day but
	// no time ("明天", "下周三", "每月5号"). 0 means 09:00.
	DefaultHour int
}

func (o Options) defaultHour() int {
	if o.DefaultHour <= 0 || o.DefaultHour > 23 {
		return 9
	}
	return o.DefaultHour
}

// Match is a resolved time expression together with the exact text span that
// produced it. The span is what the intent extractor strips from the message.
type Match struct {
	At   time.Time
	Span string
}

// rule pairs a matcher with its resolution policy. Rules are evaluated in
// order, most specific first, so a specific match is never shadowed by a
// looser one. The first rule whose pattern matches wins; its resolver alone
// decides success.
type rule struct {
	name    string
	re      *regexp.Regexp
	resolve func(m []string, now time.Time, opt Options) (time.Time, bool)
}

const (
	numPat    = `(\d{1,4}|[零一二两三四五六七八九十百]+)`
	dayPat    = `(今天|明天|大后天|后天)`
	periodPat = `(凌晨|早上|早晨|上午|中午|下午|晚上|傍晚)`
	clockPat  = numPat + `[点时:：]\s*(?:(半)|` + numPat + `分?)?`
)

var dayOffsets = map[string]int{
	"今天": 0, "明天": 1, "后天": 2, "大后天": 3,
}

var weekdayVals = map[string]int{
	"一": 1, "二": 2, "三": 3, "四": 4, "五": 5, "六": 6,
	"日": 0, "天": 0,
	"1": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 0,
}

// Resolver turns free-form text into an absolute due time. It is stateless
// and side-effect-free; a single reference instant is captured by the caller
// and threaded through every comparison.
type Resolver struct {
	opt   Options
	rules []rule
}

func NewResolver(opt Options) *Resolver {
	r := &Resolver{opt: opt}
	r.rules = []rule{
		{
			name:    "day-period-time",
			re:      regexp.MustCompile(dayPat + `\s*` + periodPat + `?\s*` + clockPat),
			resolve: r.resolveDayTime,
		},
		{
			name:    "monthly-seed",
			re:      regexp.MustCompile(`每月\s*` + numPat + `\s*[号日]`),
			resolve: r.resolveMonthly,
		},
		{
			name:    "weekday",
			re:      regexp.MustCompile(`(?:下+)?(?:周|星期|礼拜)([一二三四五六日天1-7])\s*` + periodPat + `?\s*(?:` + clockPat + `)?`),
			resolve: r.resolveWeekday,
		},
		{
			name:    "relative-offset",
			re:      regexp.MustCompile(numPat + `\s*(秒|分钟|分|小时|钟头|天)(?:钟)?\s*(?:之|以)?[后後]`),
			resolve: r.resolveRelative,
		},
		{
			name:    "period-time",
			re:      regexp.MustCompile(periodPat + `\s*` + clockPat),
			resolve: r.resolvePeriodTime,
		},
		{
			name:    "bare-day",
			re:      regexp.MustCompile(dayPat),
			resolve: r.resolveBareDay,
		},
		{
			name:    "bare-clock",
			re:      regexp.MustCompile(`([01]?\d|2[0-3])[:：]([0-5]\d)`),
			resolve: r.resolveBareHHMM,
		},
		{
			name:    "bare-hour",
			re:      regexp.MustCompile(clockPat),
			resolve: r.resolveBareHour,
		},
	}
	return r
}

// Resolve evaluates the ordered rule list against text. It returns ok=false
// when no rule matches or the first matching rule rejects its input; callers
// must treat that as non-time-bearing text.
func (r *Resolver) Resolve(text string, now time.Time) (Match, bool) {
	for _, ru := range r.rules {
		loc := ru.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		m := ru.re.FindStringSubmatch(text)
		at, ok := ru.resolve(m, now, r.opt)
		if !ok {
			return Match{}, false
		}
		return Match{At: at, Span: text[loc[0]:loc[1]]}, true
	}
	return Match{}, false
}

// Span reports the first matched time-expression span without resolving it.
// The extractor uses this to clean messages even when resolution later fails.
func (r *Resolver) Span(text string) (string, bool) {
	for _, ru := range r.rules {
		if loc := ru.re.FindStringIndex(text); loc != nil {
			return text[loc[0]:loc[1]], true
		}
	}
	return "", false
}

// periodHour applies the day-period shift: afternoon/evening push hours below
// 12 into the PM range, noon covers the 12-15 o'clock habit of saying 中午1点,
// and morning 12 means midnight.
func periodHour(period string, h int) int {
	switch period {
	case "下午", "晚上", "傍晚":
		if h < 12 {
			return h + 12
		}
	case "中午":
		if h <= 3 {
			return h + 12
		}
	case "早上", "早晨", "上午", "凌晨":
		if h == 12 {
			return 0
		}
	}
	return h
}

func clockFromGroups(hourTok, halfTok, minTok string) (h, m int, ok bool) {
	h, ok = numVal(hourTok)
	if !ok || h > 24 {
		return 0, 0, false
	}
	switch {
	case halfTok != "":
		m = 30
	case minTok != "":
		m, ok = numVal(minTok)
		if !ok || m > 59 {
			return 0, 0, false
		}
	}
	return h, m, true
}

func dayStart(now time.Time, offsetDays int) time.Time {
	y, mo, d := now.Date()
	return time.Date(y, mo, d+offsetDays, 0, 0, 0, 0, now.Location())
}

func at(day time.Time, h, m int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

// groups: 1 day word, 2 period, 3 hour, 4 half, 5 minute.
func (r *Resolver) resolveDayTime(m []string, now time.Time, _ Options) (time.Time, bool) {
	h, mi, ok := clockFromGroups(m[3], m[4], m[5])
	if !ok {
		return time.Time{}, false
	}
	h = periodHour(m[2], h)
	if h > 23 {
		return time.Time{}, false
	}
	t := at(dayStart(now, dayOffsets[m[1]]), h, mi)
	// Day-qualified expressions have no roll-forward: a stated instant that
	// already passed is a rejection, not tomorrow.
	if !t.After(now) {
		return time.Time{}, false
	}
	return t, true
}

// groups: 1 day of month.
func (r *Resolver) resolveMonthly(m []string, now time.Time, opt Options) (time.Time, bool) {
	day, ok := numVal(m[1])
	if !ok || day < 1 || day > 31 {
		return time.Time{}, false
	}
	// Next month whose calendar actually contains this day, starting with the
	// current one if its date has not passed yet.
	for add := 0; add <= 24; add++ {
		cand := time.Date(now.Year(), now.Month()+time.Month(add), day,
			opt.defaultHour(), 0, 0, 0, now.Location())
		if cand.Day() == day && cand.After(now) {
			return cand, true
		}
	}
	return time.Time{}, false
}

// groups: 1 weekday, 2 period, 3 hour, 4 half, 5 minute.
func (r *Resolver) resolveWeekday(m []string, now time.Time, opt Options) (time.Time, bool) {
	target, ok := weekdayVals[m[1]]
	if !ok {
		return time.Time{}, false
	}
	h, mi := opt.defaultHour(), 0
	if m[3] != "" {
		h, mi, ok = clockFromGroups(m[3], m[4], m[5])
		if !ok {
			return time.Time{}, false
		}
		h = periodHour(m[2], h)
		if h > 23 {
			return time.Time{}, false
		}
	}
	days := (target - int(now.Weekday()) + 7) % 7
	if days == 0 {
		// Same-day weekday references always mean next week.
		days = 7
	}
	return at(dayStart(now, days), h, mi), true
}

// groups: 1 quantity, 2 unit.
func (r *Resolver) resolveRelative(m []string, now time.Time, _ Options) (time.Time, bool) {
	n, ok := numVal(m[1])
	if !ok {
		return time.Time{}, false
	}
	var unit time.Duration
	switch m[2] {
	case "秒":
		unit = time.Second
	case "分钟", "分":
		unit = time.Minute
	case "小时", "钟头":
		unit = time.Hour
	case "天":
		unit = 24 * time.Hour
	default:
		return time.Time{}, false
	}
	t := now.Add(time.Duration(n) * unit)
	if !t.After(now) {
		return time.Time{}, false
	}
	return t, true
}

// groups: 1 period, 2 hour, 3 half, 4 minute.
func (r *Resolver) resolvePeriodTime(m []string, now time.Time, _ Options) (time.Time, bool) {
	h, mi, ok := clockFromGroups(m[2], m[3], m[4])
	if !ok {
		return time.Time{}, false
	}
	h = periodHour(m[1], h)
	if h > 23 {
		return time.Time{}, false
	}
	return rollClock(now, h, mi), true
}

// groups: 1 day word.
func (r *Resolver) resolveBareDay(m []string, now time.Time, opt Options) (time.Time, bool) {
	t := at(dayStart(now, dayOffsets[m[1]]), opt.defaultHour(), 0)
	if !t.After(now) {
		return time.Time{}, false
	}
	return t, true
}

// groups: 1 hour, 2 minute.
func (r *Resolver) resolveBareHHMM(m []string, now time.Time, _ Options) (time.Time, bool) {
	h, _ := numVal(m[1])
	mi, _ := numVal(m[2])
	return rollClock(now, h, mi), true
}

// groups: 1 hour, 2 half, 3 minute.
func (r *Resolver) resolveBareHour(m []string, now time.Time, _ Options) (time.Time, bool) {
	h, mi, ok := clockFromGroups(m[1], m[2], m[3])
	if !ok || h > 23 {
		return time.Time{}, false
	}
	return rollClock(now, h, mi), true
}

// rollClock resolves a bare clock time to today, rolling forward exactly one
// day when that instant is not strictly after now.
func rollClock(now time.Time, h, mi int) time.Time {
	t := at(dayStart(now, 0), h, mi)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
