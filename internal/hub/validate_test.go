package hub

import (
	"strings"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	if err := ValidateMessage("hello"); err != nil {
		t.Errorf("plain message must pass: %v", err)
	}
	if err := ValidateMessage(""); err == nil {
		t.Error("empty message must fail")
	}
	if err := ValidateMessage("   \t\n"); err == nil {
		t.Error("whitespace-only message must fail")
	}
	if err := ValidateMessage(strings.Repeat("a", MaxMessageLength)); err != nil {
		t.Errorf("message at the limit must pass: %v", err)
	}
	if err := ValidateMessage(strings.Repeat("a", MaxMessageLength+1)); err == nil {
		t.Error("message over the limit must fail")
	}
	if err := ValidateMessage(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("invalid UTF-8 must fail")
	}
}
