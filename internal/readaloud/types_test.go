package readaloud

import "testing"

func TestVoiceDisplayText(t *testing.T) {
	v := Voice{ID: "v1", Name: "Aria", Role: "narration", Category: "Standard"}
	if got := v.DisplayText(); got != "Aria - Standard" {
		t.Errorf("DisplayText() = %q", got)
	}
	bare := Voice{ID: "v2", Name: "Solo"}
	if got := bare.DisplayText(); got != "Solo" {
		t.Errorf("DisplayText() without category = %q", got)
	}
	if got := v.UniqueKey(); got != "v1_narration" {
		t.Errorf("UniqueKey() = %q", got)
	}
}

func TestChapterReadLength(t *testing.T) {
	ch := &Chapter{
		Title:    "t",
		Segments: []string{"abcde", "fgh", "ij"},
	}
	tests := []struct {
		cur  Cursor
		want int
	}{
		{Cursor{Segment: 0, Offset: 0}, 0},
		{Cursor{Segment: 0, Offset: 3}, 3},
		{Cursor{Segment: 1, Offset: 0}, 5},
		{Cursor{Segment: 2, Offset: 1}, 9},
		{Cursor{Segment: 3, Offset: 0}, 10},
	}
	for _, tt := range tests {
		if got := ch.ReadLength(tt.cur); got != tt.want {
			t.Errorf("ReadLength(%+v) = %d, want %d", tt.cur, got, tt.want)
		}
	}
}

func TestChapterReadLengthCountsRunes(t *testing.T) {
	ch := &Chapter{Segments: []string{"你好世界", "ab"}}
	if got := ch.ReadLength(Cursor{Segment: 1}); got != 4 {
		t.Errorf("ReadLength = %d, want 4 runes", got)
	}
}

func TestChapterPageFor(t *testing.T) {
	ch := &Chapter{PageOffsets: []int{0, 100, 250}}
	tests := []struct {
		pos  int
		want int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{249, 1},
		{250, 2},
		{9999, 2},
	}
	for _, tt := range tests {
		if got := ch.PageFor(tt.pos); got != tt.want {
			t.Errorf("PageFor(%d) = %d, want %d", tt.pos, got, tt.want)
		}
	}

	empty := &Chapter{}
	if got := empty.PageFor(50); got != 0 {
		t.Errorf("PageFor on chapter without pages = %d, want 0", got)
	}
}
