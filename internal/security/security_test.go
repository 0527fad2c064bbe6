package security_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"doc-intake-service/internal/security"
)

func TestMaskPII_Categories(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"email", "contact john.doe@example.com now", "contact j***@example.com now"},
		{"short email", "a@b.com", "***@b.com"},
		{"aadhaar", "id 1234 5678 9012", "id XXXX-XXXX-9012"},
		{"pan", "pan ABCDE1234F", "pan ABC**1234F"},
		{"card", "card 4111 1111 1111 1111", "card ****-****-****-1111"},
		{"ssn", "ssn 123-45-6789", "ssn XXX-XX-6789"},
		{"phone", "call 9876543210", "call 9*********"},
		{"phone with prefix", "call +91 9876543210", "call +91-*******"},
		{"phone at start", "+91-9876543210", "+91-*******"},
		{"no pii", "nothing to see", "nothing to see"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := security.MaskPII(tc.in, security.AllPII)
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestMaskPII_PhoneInsideWordIsKept(t *testing.T) {
	got := security.MaskAll("ref x9876543210")
	if got != "ref x9876543210" {
		t.Fatalf("expected number glued to a word to stay, got %q", got)
	}
}

func TestMaskPII_MultiplePhones(t *testing.T) {
	got := security.MaskAll("9876543210 8765432109")
	if got != "9********* 8*********" {
		t.Fatalf("unexpected masking: %q", got)
	}
}

func TestMaskPII_RespectsOptions(t *testing.T) {
	got, err := security.MaskPII("a.b@example.com", security.MaskOptions{Phone: true})
	if err != nil {
		t.Fatal(err)
	}
	if got != "a.b@example.com" {
		t.Fatalf("expected email untouched when disabled, got %q", got)
	}
}

func TestDetectPII(t *testing.T) {
	got := security.DetectPII("mail me at x@y.org or 9876543210, PAN ABCDE1234F")
	want := []string{security.PIIEmail, security.PIIPhone, security.PIIPAN}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if security.DetectPII("plain text") != nil {
		t.Fatalf("expected no pii for plain text")
	}
}

func TestSanitizeInput(t *testing.T) {
	got := security.SanitizeInput("  <script>alert(1)</script>\x00\x07 ", 0)
	if strings.Contains(got, "<") || strings.Contains(got, "\x00") || strings.Contains(got, "\x07") {
		t.Fatalf("expected escaped and stripped, got %q", got)
	}
	if !strings.HasPrefix(got, "&lt;script&gt;") {
		t.Fatalf("expected html escaped prefix, got %q", got)
	}
	if security.SanitizeInput("abcdef", 3) != "abc" {
		t.Fatalf("expected truncation to 3 runes")
	}
}

func TestMinimizeDetails_RedactsAndMasks(t *testing.T) {
	got, err := security.MinimizeDetails(map[string]any{
		"password": "x",
		"email":    "a@b.com",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got["password"] != security.Redacted {
		t.Fatalf("expected password redacted, got %v", got["password"])
	}
	if got["email"] != "***@b.com" {
		t.Fatalf("expected masked email, got %v", got["email"])
	}

	b, _ := json.Marshal(got)
	if strings.Contains(string(b), "a@b.com") || strings.Contains(string(b), `"x"`) {
		t.Fatalf("raw secret survived serialization: %s", b)
	}
}

func TestMinimizeDetails_NestedAndLists(t *testing.T) {
	got, err := security.MinimizeDetails(map[string]any{
		"nested": map[string]any{"api_key": "k", "note": "call 9876543210"},
		"emails": []any{"john@example.com", 42},
		"count":  3,
	})
	if err != nil {
		t.Fatal(err)
	}
	nested := got["nested"].(map[string]any)
	if nested["api_key"] != security.Redacted {
		t.Fatalf("expected nested api_key redacted, got %v", nested["api_key"])
	}
	if nested["note"] != "call 9*********" {
		t.Fatalf("expected nested phone masked, got %v", nested["note"])
	}
	list := got["emails"].([]any)
	if list[0] != "j***@example.com" || list[1] != 42 {
		t.Fatalf("unexpected list handling: %#v", list)
	}
	if got["count"] != 3 {
		t.Fatalf("expected primitive kept, got %v", got["count"])
	}
}

func TestMinimizeDetails_TooLarge(t *testing.T) {
	_, err := security.MinimizeDetails(map[string]any{"blob": strings.Repeat("a", security.MaxDetailsSize+1)})
	if !errors.Is(err, security.ErrInputTooLarge) {
		t.Fatalf("expected ErrInputTooLarge, got %v", err)
	}
}
