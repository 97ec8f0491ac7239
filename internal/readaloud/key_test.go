package readaloud

import (
	"strings"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	a := DeriveKey("Chapter One", "voice-1", 10, "hello world")
	b := DeriveKey("Chapter One", "voice-1", 10, "hello world")
	if a != b {
		t.Errorf("same inputs produced different keys: %q vs %q", a, b)
	}
}

func TestDeriveKeyInputSensitivity(t *testing.T) {
	base := DeriveKey("Chapter One", "voice-1", 10, "hello world")

	tests := []struct {
		name  string
		title string
		voice string
		rate  int
		text  string
	}{
		{"different title", "Chapter Two", "voice-1", 10, "hello world"},
		{"different voice", "Chapter One", "voice-2", 10, "hello world"},
		{"different rate", "Chapter One", "voice-1", 11, "hello world"},
		{"different text", "Chapter One", "voice-1", 10, "hello there"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveKey(tt.title, tt.voice, tt.rate, tt.text)
			if got == base {
				t.Errorf("key did not change for %s", tt.name)
			}
		})
	}
}

func TestDeriveKeyBoundedLength(t *testing.T) {
	short := DeriveKey("t", "v", 1, "a")
	long := DeriveKey(strings.Repeat("title ", 500), "v", 1, strings.Repeat("text ", 10000))
	if len(short) != len(long) {
		t.Errorf("key length varies with input size: %d vs %d", len(short), len(long))
	}
}

func TestDeriveKeyFilenameSafe(t *testing.T) {
	key := DeriveKey("第一章 奇怪的标题/与符号?", "voice:1", 10, "text with spaces\nand newlines")
	if strings.ContainsAny(key, "/\\:?* \n") {
		t.Errorf("key contains unsafe filename characters: %q", key)
	}
}
