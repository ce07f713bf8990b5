package choice

import (
	"testing"

	"github.com/solvd/pkgcore/internal/name"
)

func mustFlag(t *testing.T, s string) name.UnprefixedChoiceName {
	t.Helper()
	f, err := name.NewUnprefixedChoiceName(s)
	if err != nil {
		t.Fatalf("NewUnprefixedChoiceName(%q): %s", s, err)
	}
	return f
}

func mustPrefix(t *testing.T, s string) name.ChoicePrefixName {
	t.Helper()
	p, err := name.NewChoicePrefixName(s)
	if err != nil {
		t.Fatalf("NewChoicePrefixName(%q): %s", s, err)
	}
	return p
}

func TestChoicesEnabled(t *testing.T) {
	threads := mustFlag(t, "threads")
	c := Choices{Groups: []Choice{{
		Values: []ChoiceValue{{Name: threads, Enabled: true}},
	}}}
	if !c.Enabled("", threads) {
		t.Error("expected threads enabled")
	}
	if c.Enabled("", mustFlag(t, "debug")) {
		t.Error("debug should not be found as enabled")
	}
}

func TestDiffConsidersOnlyFlaggedGroups(t *testing.T) {
	sse2 := mustFlag(t, "sse2")
	prefix := mustPrefix(t, "cpu_flags_x86")

	from := Choices{Groups: []Choice{{
		Prefix: prefix, ConsiderAddedOrChanged: true,
		Values: []ChoiceValue{{Name: sse2, Enabled: false}},
	}}}
	to := Choices{Groups: []Choice{{
		Prefix: prefix, ConsiderAddedOrChanged: true,
		Values: []ChoiceValue{{Name: sse2, Enabled: true}},
	}}}

	changed := Diff(from, to)
	if len(changed) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changed))
	}
	if changed[0].Before || !changed[0].After {
		t.Errorf("unexpected change values: %+v", changed[0])
	}
}

func TestDiffIgnoresUnflaggedGroups(t *testing.T) {
	debug := mustFlag(t, "debug")
	from := Choices{Groups: []Choice{{
		Values: []ChoiceValue{{Name: debug, Enabled: false}},
	}}}
	to := Choices{Groups: []Choice{{
		Values: []ChoiceValue{{Name: debug, Enabled: true}},
	}}}
	if changed := Diff(from, to); len(changed) != 0 {
		t.Errorf("expected no changes for unflagged group, got %d", len(changed))
	}
}
