package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  call.wav ", "call.wav"},
		{"a/b\\c:d*e", "a-b-c-d-e"},
		{`what?"<>|.mp3`, "what.mp3"},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUploadFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"call.wav", "temp_call.wav"},
		{"../../etc/passwd", "temp_passwd"},
		{`C:\Users\agent\call 1.mp3`, "temp_call 1.mp3"},
		{"", "temp_upload"},
		{"..", "temp_upload"},
		{".hidden.wav", "temp_hidden.wav"},
	}
	for _, tt := range tests {
		if got := UploadFileName(tt.in); got != tt.want {
			t.Errorf("UploadFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "unknown"},
		{"Technical Support", "technical_support"},
		{"__--", "unknown"},
		{"SPEAKER_00", "speaker_00"},
	}
	for _, tt := range tests {
		if got := SanitizeToken(tt.in); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
