package envutil

import "testing"

func TestAccessorsFallBackToDefaults(t *testing.T) {
	t.Setenv("EU_INT", "nope")
	t.Setenv("EU_FLOAT", "NaN")
	t.Setenv("EU_BOOL", "maybe")
	if got := Int("EU_INT", 7); got != 7 {
		t.Fatalf("Int: got %d", got)
	}
	if got := Float("EU_FLOAT", 1.5); got != 1.5 {
		t.Fatalf("Float: got %v", got)
	}
	if got := Bool("EU_BOOL", true); !got {
		t.Fatalf("Bool: got %v", got)
	}
	if got := String("EU_MISSING", "d"); got != "d" {
		t.Fatalf("String: got %q", got)
	}
}

func TestAccessorsParseValues(t *testing.T) {
	t.Setenv("EU_INT", " 42 ")
	t.Setenv("EU_FLOAT", "0.25")
	t.Setenv("EU_BOOL", "off")
	t.Setenv("EU_STR", " v ")
	if Int("EU_INT", 0) != 42 || Float("EU_FLOAT", 0) != 0.25 || Bool("EU_BOOL", true) || String("EU_STR", "") != "v" {
		t.Fatal("unexpected parse result")
	}
}
