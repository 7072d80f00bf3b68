package auth

import (
	"errors"
	"testing"
)

func TestParseDeviceTokens_OK(t *testing.T) {
	tokens, err := ParseDeviceTokens("tok-a:meter-1, tok-b:meter-2")
	if err != nil {
		t.Fatalf("ParseDeviceTokens: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(tokens))
	}
	if d, ok := tokens.Lookup("tok-a"); !ok || d != "meter-1" {
		t.Fatalf("Lookup tok-a = (%q, %v)", d, ok)
	}
	if d, ok := tokens.Lookup("tok-b"); !ok || d != "meter-2" {
		t.Fatalf("Lookup tok-b = (%q, %v)", d, ok)
	}
}

func TestParseDeviceTokens_DeviceIDMayContainColon(t *testing.T) {
	// Only the first colon separates token from device.
	tokens, err := ParseDeviceTokens("tok:host:8080")
	if err != nil {
		t.Fatalf("ParseDeviceTokens: %v", err)
	}
	if d, _ := tokens.Lookup("tok"); d != "host:8080" {
		t.Fatalf("device = %q, want host:8080", d)
	}
}

func TestParseDeviceTokens_Malformed(t *testing.T) {
	for _, spec := range []string{
		"",
		"   ",
		"justatoken",
		"tok:",
		":meter-1",
		"tok-a:m1,tok-a:m2", // duplicate token
	} {
		if _, err := ParseDeviceTokens(spec); !errors.Is(err, ErrBadTokenSpec) {
			t.Fatalf("spec %q: expected ErrBadTokenSpec, got %v", spec, err)
		}
	}
}

func TestLookup_UnknownToken(t *testing.T) {
	tokens, err := ParseDeviceTokens("tok-a:meter-1")
	if err != nil {
		t.Fatalf("ParseDeviceTokens: %v", err)
	}
	if _, ok := tokens.Lookup("nope"); ok {
		t.Fatal("unknown token must not resolve")
	}
}
