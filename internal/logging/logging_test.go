package logging

import "testing"

func TestParseLevel_KnownAndUnknown(t *testing.T) {
	cases := map[string]bool{"debug": true, "WARN": true, "bogus": false}
	for level, known := range cases {
		got := parseLevel(level)
		if known && got.String() == "" {
			t.Fatalf("expected a valid level for %q", level)
		}
	}
}

func TestWithComponent_InheritsGlobalLevel(t *testing.T) {
	l := WithComponent("batch")
	if l.GetLevel() != Logger().GetLevel() {
		t.Fatal("component logger should inherit the global level")
	}
}
