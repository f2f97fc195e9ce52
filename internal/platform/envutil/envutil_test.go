package envutil

import "testing"

func TestStr(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_STR", "  hello  ")
	if got := Str("ENVUTIL_TEST_STR", "def"); got != "hello" {
		t.Fatalf("Str trims: want=%q got=%q", "hello", got)
	}
	if got := Str("ENVUTIL_TEST_STR_MISSING", "def"); got != "def" {
		t.Fatalf("Str default: want=%q got=%q", "def", got)
	}
}

func TestInt(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_INT", "42")
	if got := Int("ENVUTIL_TEST_INT", 7); got != 42 {
		t.Fatalf("Int: want=42 got=%d", got)
	}
	t.Setenv("ENVUTIL_TEST_INT", "not-a-number")
	if got := Int("ENVUTIL_TEST_INT", 7); got != 7 {
		t.Fatalf("Int bad value falls back: want=7 got=%d", got)
	}
}

func TestFloat(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_FLOAT", "0.25")
	if got := Float("ENVUTIL_TEST_FLOAT", 1.0); got != 0.25 {
		t.Fatalf("Float: want=0.25 got=%v", got)
	}
	if got := Float("ENVUTIL_TEST_FLOAT_MISSING", 1.0); got != 1.0 {
		t.Fatalf("Float default: want=1.0 got=%v", got)
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "YES": true, "on": true,
		"0": false, "false": false, "No": false, "off": false,
	}
	for raw, want := range cases {
		t.Setenv("ENVUTIL_TEST_BOOL", raw)
		if got := Bool("ENVUTIL_TEST_BOOL", !want); got != want {
			t.Errorf("Bool(%q): want=%v got=%v", raw, want, got)
		}
	}
	t.Setenv("ENVUTIL_TEST_BOOL", "maybe")
	if got := Bool("ENVUTIL_TEST_BOOL", true); got != true {
		t.Fatalf("Bool unparsable falls back to default")
	}
}
