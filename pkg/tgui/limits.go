package tgui

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// It covers the full encoded string, e.g. "ns:action:payload".
const MaxCallbackDataLen = 64

// MaxMessageLen is Telegram's hard limit for a single text message,
// measured in UTF-16 code units; counting runes stays under it.
const MaxMessageLen = 4096

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// SplitText splits a long plain-text message into Telegram-safe chunks,
// preferring newline boundaries. limit <= 0 uses a conservative default.
func SplitText(text string, limit int) []string {
	if limit <= 0 || limit > MaxMessageLen {
		limit = 3500
	}
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var out []string
	start := 0 // byte index
	for start < len(text) {
		runes := 0
		end := start
		lastNL := -1 // byte index just past the last newline in this window
		lastNLRunes := 0
		for end < len(text) && runes < limit {
			r, size := utf8.DecodeRuneInString(text[end:])
			if r == '\n' {
				lastNL = end + size
				lastNLRunes = runes + 1
			}
			runes++
			end += size
		}
		// Break at a newline unless it would leave the chunk mostly empty.
		if end < len(text) && lastNL != -1 && lastNLRunes >= limit/3 {
			end = lastNL
		}
		chunk := strings.TrimRight(text[start:end], "\n")
		if chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(text) {
			r, size := utf8.DecodeRuneInString(text[start:])
			if r != '\n' {
				break
			}
			start += size
		}
	}
	return out
}
