package shared

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	t.Run("api_key_value_is_redacted", func(t *testing.T) {
		in := `api_key=abcdef0123456789abcdef failed`
		out := Redact(in)
		if strings.Contains(out, "abcdef0123456789abcdef") {
			t.Errorf("key survived redaction: %q", out)
		}
		if !strings.Contains(out, "[REDACTED]") {
			t.Errorf("expected placeholder in %q", out)
		}
	})

	t.Run("anthropic_key_is_redacted", func(t *testing.T) {
		out := Redact("got 401 using sk-ant-REDACTED")
		if strings.Contains(out, "sk-ant-") {
			t.Errorf("anthropic key survived: %q", out)
		}
	})

	t.Run("plain_text_is_unchanged", func(t *testing.T) {
		in := "invoice 42 paid, amount 120.50"
		if out := Redact(in); out != in {
			t.Errorf("expected unchanged, got %q", out)
		}
	})

	t.Run("empty_input", func(t *testing.T) {
		if out := Redact(""); out != "" {
			t.Errorf("expected empty, got %q", out)
		}
	})
}
