package cursor

import (
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	original := NewNextPageCursor(1771000000000, "esc-42", `lead_id = "lead-1"`)
	token, err := Encode(original)
	if err != nil {
		t.Fatalf("encode cursor: %v", err)
	}

	decoded, err := Decode(token)
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	if decoded != original {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := []string{"", "!!!not-base64!!!", "bm90LWpzb24"}
	for _, token := range cases {
		if _, err := Decode(token); err == nil {
			t.Fatalf("expected decode error for token %q", token)
		}
	}
}

func TestValidateFilterHashDetectsChange(t *testing.T) {
	t.Parallel()

	c := NewNextPageCursor(1, "esc-1", "acknowledged = false")
	if err := ValidateFilterHash(c, "acknowledged = false"); err != nil {
		t.Fatalf("expected matching filter hash: %v", err)
	}
	err := ValidateFilterHash(c, `lead_id = "other"`)
	if err == nil || !strings.Contains(err.Error(), "filter changed") {
		t.Fatalf("expected filter change error, got %v", err)
	}
}

func TestHashFilterEmpty(t *testing.T) {
	t.Parallel()

	if HashFilter("") != "" {
		t.Fatal("expected empty hash for empty filter")
	}
}
