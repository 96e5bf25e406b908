package utils

import "testing"

func TestNormalizeImageContentType(t *testing.T) {
	// Minimal real headers: JPEG SOI and PNG signature.
	jpegHead := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	pngHead := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 13}

	tests := []struct {
		name     string
		declared string
		data     []byte
		want     string
		ok       bool
	}{
		{"declared jpeg", "image/jpeg", nil, "image/jpeg", true},
		{"declared jpg alias", "image/jpg", nil, "image/jpeg", true},
		{"declared with params", "image/png; charset=binary", nil, "image/png", true},
		{"uppercase declared", "IMAGE/WEBP", nil, "image/webp", true},
		{"octet-stream sniffs jpeg", "application/octet-stream", jpegHead, "image/jpeg", true},
		{"empty declared sniffs png", "", pngHead, "image/png", true},
		{"pdf rejected", "application/pdf", nil, "application/pdf", false},
		{"text rejected", "text/plain", nil, "text/plain", false},
	}

	for _, tt := range tests {
		got, ok := NormalizeImageContentType(tt.declared, tt.data)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s: got (%q, %v), want (%q, %v)", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtForContentType(t *testing.T) {
	if got := ExtForContentType("image/jpeg"); got != ".jpg" {
		t.Errorf("jpeg ext: %q", got)
	}
	if got := ExtForContentType("image/webp"); got != ".webp" {
		t.Errorf("webp ext: %q", got)
	}
	if got := ExtForContentType("application/pdf"); got != "" {
		t.Errorf("expected empty ext for pdf, got %q", got)
	}
}

func TestSanitizeUserKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"telegram:12345", "telegram_12345"},
		{"whatsapp:+1555000", "whatsapp__1555000"},
		{"discord:abc-DEF_9", "discord_abc-DEF_9"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"", "anonymous"},
	}
	for _, tt := range tests {
		if got := SanitizeUserKey(tt.in); got != tt.want {
			t.Errorf("SanitizeUserKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeUserKeyDistinct(t *testing.T) {
	a := SanitizeUserKey("telegram:1001")
	b := SanitizeUserKey("telegram:1002")
	if a == b {
		t.Fatalf("distinct keys collapsed: %q", a)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5 MB"},
		{2684354560, "2.5 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("no-op truncate changed string: %q", got)
	}
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Errorf("Truncate: %q", got)
	}
}
