package util

import "testing"

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{-1, "0 B"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatBlocks(t *testing.T) {
	if got := FormatBlocks(2); got != "1.0 KiB" {
		t.Errorf("FormatBlocks(2) = %q, want %q", got, "1.0 KiB")
	}
	if got := FormatBlocks(0); got != "0 B" {
		t.Errorf("FormatBlocks(0) = %q, want %q", got, "0 B")
	}
	if got := FormatBlocks(-4); got != "0 B" {
		t.Errorf("FormatBlocks(-4) = %q, want %q", got, "0 B")
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5K"},
		{2_500_000, "2.5M"},
		{3_000_000_000, "3.0B"},
	}
	for _, tt := range tests {
		if got := FormatCount(tt.n); got != tt.want {
			t.Errorf("FormatCount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(25, 100); got != 25 {
		t.Errorf("Percent(25, 100) = %v, want 25", got)
	}
	if got := Percent(1, 0); got != 0 {
		t.Errorf("Percent(1, 0) = %v, want 0", got)
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
		{"anything", 0, ""},
		{"héllo wörld", 8, "héllo..."},
	}
	for _, tt := range tests {
		if got := TruncateString(tt.s, tt.maxLen); got != tt.want {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
	}
}
