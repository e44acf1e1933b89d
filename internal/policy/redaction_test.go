package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIILeavesPlainTextAlone(t *testing.T) {
	out, changed := RedactPII("Hello, how are you today?")
	if changed || out != "Hello, how are you today?" {
		t.Fatalf("RedactPII() = %q, %v", out, changed)
	}
}

func TestRedactSecrets(t *testing.T) {
	input := "heygen http status 401: invalid key sk-live-123; Authorization: Bearer abc.def-ghi"
	out := RedactSecrets(input, "sk-live-123", "  ")
	if strings.Contains(out, "sk-live-123") || strings.Contains(out, "abc.def-ghi") {
		t.Fatalf("secrets leaked: %q", out)
	}
	if !strings.Contains(out, "[REDACTED_SECRET]") || !strings.Contains(out, "Bearer [REDACTED]") {
		t.Fatalf("missing markers: %q", out)
	}
}

func TestForLog(t *testing.T) {
	out := ForLog("n8n http status 500: could not notify sam@example.com with key k-1", "k-1")
	if strings.Contains(out, "sam@example.com") || strings.Contains(out, "k-1") {
		t.Fatalf("ForLog() = %q", out)
	}
}
