package style

import (
	"testing"
)

func TestContentHeight(t *testing.T) {
	tests := []struct {
		w, h int
		want int
	}{
		{80, 24, 20},
		{10, 5, 1},
		{10, 4, 1},
		{10, 0, 1},
		{80, 50, 46},
	}

	for _, tt := range tests {
		l := NewLayout(tt.w, tt.h)
		if got := l.ContentHeight(); got != tt.want {
			t.Errorf("NewLayout(%d,%d).ContentHeight() = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestBarWidth(t *testing.T) {
	tests := []struct {
		width int
		want  int
	}{
		{10, 5},   // 20-28 is negative, clamped to 5
		{35, 7},   // 35-28 = 7
		{80, 40},  // 80-28 = 52, clamped to 40
		{200, 40}, // clamped to 40
	}

	for _, tt := range tests {
		l := NewLayout(tt.width, 24)
		if got := l.BarWidth(); got != tt.want {
			t.Errorf("NewLayout(%d,24).BarWidth() = %d, want %d", tt.width, got, tt.want)
		}
	}
}

func TestNameWidth(t *testing.T) {
	for _, width := range []int{10, 30, 80, 200} {
		l := NewLayout(width, 24)
		if got := l.NameWidth(); got < 1 {
			t.Errorf("NewLayout(%d,24).NameWidth() = %d, want >= 1", width, got)
		}
	}

	// For a wide terminal the row exactly fills the content width.
	l := NewLayout(100, 24)
	total := l.NameWidth() + l.BarWidth() + l.rowOverhead()
	if total != l.ContentWidth() {
		t.Errorf("NameWidth(%d) + BarWidth(%d) + overhead(%d) = %d, want ContentWidth %d",
			l.NameWidth(), l.BarWidth(), l.rowOverhead(), total, l.ContentWidth())
	}
}

func TestFullWidth(t *testing.T) {
	got := FullWidth("hi", 5)
	if got != "hi   " {
		t.Errorf("FullWidth(\"hi\", 5) = %q, want %q", got, "hi   ")
	}

	got = FullWidth("hello", 5)
	if got != "hello" {
		t.Errorf("FullWidth(\"hello\", 5) = %q, want %q", got, "hello")
	}

	if got := FullWidth("toolong", 3); got != "toolong" {
		t.Errorf("FullWidth must not truncate, got %q", got)
	}
}
