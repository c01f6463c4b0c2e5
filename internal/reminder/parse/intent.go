package parse

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"remindbot/internal/reminder"
)

// keyword tables. Ordered slices, first match wins within each table;
// detection is an independent pass over the raw text.
type keyword[T any] struct {
	token string
	value T
}

var priorityTable = []keyword[reminder.Priority]{
	{"紧急", reminder.PriorityUrgent},
	{"urgent", reminder.PriorityUrgent},
	{"重要", reminder.PriorityHigh},
	{"high", reminder.PriorityHigh},
	{"低优先", reminder.PriorityLow},
	{"低", reminder.PriorityLow},
	{"不急", reminder.PriorityLow},
	{"low", reminder.PriorityLow},
}

var categoryTable = []keyword[string]{
	{"工作", "工作"},
	{"生活", "生活"},
	{"学习", "学习"},
	{"健康", "健康"},
	{"家庭", "家庭"},
	{"运动", "运动"},
	{"购物", "购物"},
}

var recurTable = []keyword[reminder.Pattern]{
	{"工作日", reminder.RecurWorkdays},
	{"workdays", reminder.RecurWorkdays},
	{"每周末", reminder.RecurWeekends},
	{"周末", reminder.RecurWeekends},
	{"weekends", reminder.RecurWeekends},
	{"每天", reminder.RecurDaily},
	{"每日", reminder.RecurDaily},
	{"daily", reminder.RecurDaily},
	{"每周", reminder.RecurWeekly},
	{"每星期", reminder.RecurWeekly},
	{"weekly", reminder.RecurWeekly},
	{"每月", reminder.RecurMonthly},
	{"monthly", reminder.RecurMonthly},
	{"每年", reminder.RecurYearly},
	{"yearly", reminder.RecurYearly},
}

var noteDelims = []string{"备注：", "备注:", "notes:", "note:"}

// fillerPrefixes are chat-speak lead-ins stripped from the cleaned message.
var fillerPrefixes = []string{"提醒我", "提醒", "叫我", "记得", "remind me to", "remind me"}

var (
	tagRe   = regexp.MustCompile(`#([^\s#，。,]+)`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Extractor derives structured intent from raw reminder text. It shares the
// resolver's span detection so message cleaning and due-time resolution agree
// on what the time expression was.
type Extractor struct {
	res *Resolver
}

func NewExtractor(res *Resolver) *Extractor {
	return &Extractor{res: res}
}

// Extract runs the full analysis over text with a single reference instant.
// It never fails: absence of a signal yields the documented default
// (priority normal, no category, recurrence none). HasTime is false when the
// resolver found nothing time-bearing.
func (e *Extractor) Extract(text string, now time.Time) reminder.ParsedIntent {
	intent := reminder.ParsedIntent{
		Priority:   reminder.PriorityNormal,
		Recurrence: reminder.RecurNone,
	}

	lower := asciiLower(text)
	for _, kw := range priorityTable {
		if strings.Contains(lower, kw.token) {
			intent.Priority = kw.value
			break
		}
	}
	for _, kw := range categoryTable {
		if strings.Contains(lower, kw.token) {
			intent.CategoryName = kw.value
			break
		}
	}
	for _, kw := range recurTable {
		if strings.Contains(lower, kw.token) {
			intent.Recurrence = kw.value
			break
		}
	}

	// Tags: every #token, de-duplicated, first-appearance order.
	seen := map[string]bool{}
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		tag := m[1]
		if seen[tag] {
			continue
		}
		seen[tag] = true
		intent.Tags = append(intent.Tags, tag)
	}

	// Notes: remainder after the first recognized delimiter.
	body := text
	for _, d := range noteDelims {
		if i := foldIndex(body, d); i >= 0 {
			intent.Notes = strings.TrimSpace(body[i+len(d):])
			body = body[:i]
			break
		}
	}

	if m, ok := e.res.Resolve(body, now); ok {
		intent.DueAt = m.At
		intent.HasTime = true
	}

	intent.CleanedMessage = e.clean(body, intent)
	return intent
}

// clean strips, in order: tag tokens, the time-expression span, then matched
// keyword tokens, then collapses punctuation and whitespace. If that leaves
// fewer than 3 bytes the keyword strip is skipped so legitimate short
// reminders survive.
func (e *Extractor) clean(body string, intent reminder.ParsedIntent) string {
	base := tagRe.ReplaceAllString(body, " ")
	if span, ok := e.res.Span(base); ok {
		base = strings.Replace(base, span, " ", 1)
	}

	strict := base
	if intent.Priority != reminder.PriorityNormal {
		strict = stripKeyword(strict, priorityTable, string(intent.Priority))
	}
	if intent.CategoryName != "" {
		strict = stripKeyword(strict, categoryTable, intent.CategoryName)
	}
	if intent.Recurrence != reminder.RecurNone {
		strict = stripKeyword(strict, recurTable, string(intent.Recurrence))
	}
	strict = stripFillers(strict)

	out := collapse(strict)
	if len(out) < 3 {
		// Looser fallback: tags + notes + time span only.
		out = collapse(stripFillers(base))
	}
	return out
}

// stripKeyword removes every table token that maps to the detected value.
func stripKeyword[T comparable](s string, table []keyword[T], detected string) string {
	for _, kw := range table {
		if !strings.EqualFold(asString(kw.value), detected) {
			continue
		}
		for {
			i := foldIndex(s, kw.token)
			if i < 0 {
				break
			}
			s = s[:i] + " " + s[i+len(kw.token):]
		}
	}
	return s
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case reminder.Priority:
		return string(x)
	case reminder.Pattern:
		return string(x)
	}
	return ""
}

// asciiLower folds A-Z only, so the result keeps the byte layout of s and
// offsets into it stay valid for the original. Unicode case folding can
// change byte length (e.g. İ) and would misalign slice positions.
func asciiLower(s string) string {
	i := 0
	for ; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			break
		}
	}
	if i == len(s) {
		return s
	}
	b := []byte(s)
	for ; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// foldIndex is a case-insensitive strings.Index whose returned offset is
// valid in the original s.
func foldIndex(s, sub string) int {
	return strings.Index(asciiLower(s), asciiLower(sub))
}

func stripFillers(s string) string {
	trimmed := strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	for _, f := range fillerPrefixes {
		if strings.HasPrefix(asciiLower(trimmed), f) {
			return trimmed[len(f):]
		}
	}
	return s
}

// collapse folds punctuation runs into single spaces and trims the edges.
func collapse(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsPunct(r) && r != '#' {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	out := spaceRe.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(out)
}
