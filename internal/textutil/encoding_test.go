package textutil

import (
	"testing"
	"unicode/utf8"
)

func TestEnsureUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid passes through", "hello 👋 wörld", "hello 👋 wörld"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnsureUTF8(tt.in); got != tt.want {
				t.Errorf("EnsureUTF8(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEnsureUTF8_AlwaysValid(t *testing.T) {
	for _, in := range []string{"caf\xe9", "\xff\xfe\xfd", "ok\x80", "\x93quoted\x94 text from an export"} {
		if got := EnsureUTF8(in); !utf8.ValidString(got) {
			t.Errorf("EnsureUTF8(%q) = %q is not valid UTF-8", in, got)
		}
	}
}

func TestSanitizeUTF8(t *testing.T) {
	if got := SanitizeUTF8("a\xffb"); got != "a�b" {
		t.Errorf("SanitizeUTF8 = %q", got)
	}
}

func TestEncodingByName(t *testing.T) {
	for _, name := range []string{"windows-1252", "ISO-8859-1", "Shift_JIS", "GB18030", "Big5"} {
		if EncodingByName(name) == nil {
			t.Errorf("EncodingByName(%q) = nil", name)
		}
	}
	if EncodingByName("UTF-32") != nil {
		t.Error("EncodingByName(UTF-32) should be nil")
	}
}
