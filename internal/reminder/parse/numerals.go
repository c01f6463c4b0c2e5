package parse

import "strconv"

var cnDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// chineseToInt converts a Chinese numeral by positional expansion
// (二十五 -> 25, 十五 -> 15, 两百 -> 200). Numerals it cannot decompose
// fall back to 1 so a mangled quantity degrades to a minimal offset
// instead of failing the whole expression.
func chineseToInt(s string) int {
	total := 0
	cur := 0
	matched := false
	for _, r := range s {
		switch r {
		case '十':
			if cur == 0 {
				cur = 1
			}
			total += cur * 10
			cur = 0
			matched = true
		case '百':
			if cur == 0 {
				cur = 1
			}
			total += cur * 100
			cur = 0
			matched = true
		default:
			d, ok := cnDigits[r]
			if !ok {
				return 1
			}
			// Positional: 一九 reads as 1,9 -> 19 the same way 十九 does.
			cur = cur*10 + d
			matched = true
		}
	}
	total += cur
	if !matched || (total == 0 && s != "零") {
		return 1
	}
	return total
}

// numVal parses an Arabic or Chinese numeral token.
func numVal(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	ascii := true
	for _, r := range s {
		if r < '0' || r > '9' {
			ascii = false
			break
		}
	}
	if ascii {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return chineseToInt(s), true
}
