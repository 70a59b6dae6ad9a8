package pipeline

import (
	"testing"
	"time"
)

func TestNormalizeIdentity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://a.example/p?x=1#y", "https://a.example/p"},
		{"HTTPS://A.Example/Path/", "https://a.example/path/"},
		{"  https://a.example/p?utm_source=rss  ", "https://a.example/p"},
		{"https://a.example/p?", "https://a.example/p"},
		{"not a url", "not a url"},
		{"/relative/Path", "/relative/path"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeIdentity(tt.in); got != tt.want {
			t.Errorf("NormalizeIdentity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdentity_Idempotent(t *testing.T) {
	for _, in := range []string{"https://a.example/P?q=1#f", "Some Text", "https://x.example"} {
		once := NormalizeIdentity(in)
		if twice := NormalizeIdentity(once); twice != once {
			t.Errorf("NormalizeIdentity not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z"},
		{"2024-01-01T02:00:00+02:00", "2024-01-01T00:00:00Z"},
		{"Mon, 01 Jan 2024 10:30:00 +0000", "2024-01-01T10:30:00Z"},
		{"Mon, 1 Jan 2024 10:30:00 GMT", "2024-01-01T10:30:00Z"},
		{"2024-01-01T10:30:00", "2024-01-01T10:30:00Z"},
		{"2024-01-01", "2024-01-01T00:00:00Z"},
		{"2024-01-01T10:30", "2024-01-01T10:30:00Z"},
		{"Jan 15, 2024", "2024-01-15T00:00:00Z"},
		{"15 Jan 2024", "2024-01-15T00:00:00Z"},
		{"Mon, 15 Jan 2024", "2024-01-15T00:00:00Z"},
		{"", ""},
		{"yesterday", ""},
	}
	for _, tt := range tests {
		if got := normalizeTimestamp(tt.in); got != tt.want {
			t.Errorf("normalizeTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jan 15, 2024", "2024-01-15T00:00:00Z"},
		{"  Spring 2024 ", "Spring 2024"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := resolveTimestamp(tt.in); got != tt.want {
			t.Errorf("resolveTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSameText(t *testing.T) {
	// "é" precomposed vs "e" + combining acute
	if !sameText("café  con leche", "café con leche ") {
		t.Error("NFC-equivalent strings with different spacing should compare equal")
	}
	if sameText("Study finds X", "Estudio halla X") {
		t.Error("different strings compared equal")
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(nil); got != "" {
		t.Errorf("formatTime(nil) = %q", got)
	}
	ts := time.Date(2024, 3, 5, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	if got := formatTime(&ts); got != "2024-03-05T11:00:00Z" {
		t.Errorf("formatTime = %q", got)
	}
}
