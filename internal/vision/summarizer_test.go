package vision

import (
	"errors"
	"testing"
)

// TestParseResponse verifies decoding of a multi-diagram page reply.
func TestParseResponse(t *testing.T) {
	content := `{
		"summaries": [
			{"name": "Architecture A", "summary": "Requests enter through the gateway."},
			{"name": "Architecture B", "summary": "Events flow through the broker."}
		]
	}`

	summaries, err := ParseResponse(content)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}

	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].Name != "Architecture A" {
		t.Errorf("Expected 'Architecture A', got %q", summaries[0].Name)
	}
	if summaries[1].Summary != "Events flow through the broker." {
		t.Errorf("Unexpected summary: %q", summaries[1].Summary)
	}
}

// TestParseResponse_NoDiagrams verifies an empty list is success, not an
// error: pages without diagrams are a normal outcome.
func TestParseResponse_NoDiagrams(t *testing.T) {
	summaries, err := ParseResponse(`{"summaries": []}`)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("Expected no summaries, got %d", len(summaries))
	}
}

// TestParseResponse_Malformed verifies schema violations are rejected.
func TestParseResponse_Malformed(t *testing.T) {
	cases := []string{
		"plain text reply",
		`{"summaries": [{"summary": "missing name"}]}`,
		`{"summaries": 42}`,
	}

	for _, content := range cases {
		if _, err := ParseResponse(content); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("ParseResponse(%q): expected ErrMalformedResponse, got %v", content, err)
		}
	}
}
