package tgui

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"", 5, ""},
		{"hello", 5, "hello"},
		{"hello world", 5, "hello…"},
		{"买牛奶和面包", 3, "买牛奶…"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestSplitTextShortPassthrough(t *testing.T) {
	t.Parallel()

	got := SplitText("第一行\n第二行", 100)
	if len(got) != 1 || got[0] != "第一行\n第二行" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("一条很长的提醒记录行\n")
	}
	chunks := SplitText(b.String(), 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 100 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, utf8.RuneCountInString(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d has dangling newline: %q", i, c)
		}
	}
	joined := strings.Join(chunks, "\n")
	if joined != strings.TrimRight(b.String(), "\n") {
		t.Fatalf("chunks lost content")
	}
}
