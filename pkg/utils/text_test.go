package utils

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("Кирилл", 3); got != "Кир..." {
		t.Errorf("multi-byte truncate: got %q", got)
	}
}

func TestPreview(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		if got := Preview("convoy", 200); got != "convoy" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("cut at rune boundary", func(t *testing.T) {
		s := "日本語のレポート本文"
		got := Preview(s, 4)
		if utf8.RuneCountInString(got) != 4 || !utf8.ValidString(got) {
			t.Errorf("got %q", got)
		}
	})
	t.Run("non-positive bound returns input", func(t *testing.T) {
		if got := Preview("abc", 0); got != "abc" {
			t.Errorf("got %q", got)
		}
	})
}
