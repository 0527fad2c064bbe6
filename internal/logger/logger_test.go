package logger

import "testing"

func TestSanitizeKVs_RedactsSensitiveKeys(t *testing.T) {
	got := sanitizeKVs([]interface{}{"job_id", "abc", "postgres_dsn", "postgres://u:p@h/db", "api_key", "k"})

	if got[1] != "abc" {
		t.Fatalf("expected job_id to pass through, got %v", got[1])
	}
	if got[3] != "[REDACTED]" {
		t.Fatalf("expected dsn redacted, got %v", got[3])
	}
	if got[5] != "[REDACTED]" {
		t.Fatalf("expected api_key redacted, got %v", got[5])
	}
}

func TestSanitizeKVs_OddLengthKeepsTrailingKey(t *testing.T) {
	got := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(got) != 3 || got[2] != "dangling" {
		t.Fatalf("expected trailing key kept, got %#v", got)
	}
}
