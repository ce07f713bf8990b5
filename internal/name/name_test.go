package name

import "testing"

func TestNewQualifiedPackageName(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"dev-lang/python", false},
		{"sys-apps/baselayout", false},
		{"noslash", true},
		{"/missing-category", true},
		{"bad category/pkg", true},
	}

	for _, c := range cases {
		q, err := NewQualifiedPackageName(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got none", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %s", c.in, err)
			continue
		}
		if q.String() != c.in {
			t.Errorf("%q: round-trip mismatch, got %q", c.in, q.String())
		}
	}
}

func TestQualifiedPackageNameLess(t *testing.T) {
	a, _ := NewQualifiedPackageName("dev-lang/python")
	b, _ := NewQualifiedPackageName("dev-lang/ruby")
	c, _ := NewQualifiedPackageName("sys-apps/baselayout")

	if !a.Less(b) {
		t.Errorf("%s should sort before %s", a, b)
	}
	if !b.Less(c) {
		t.Errorf("%s should sort before %s", b, c)
	}
	if c.Less(a) {
		t.Errorf("%s should not sort before %s", c, a)
	}
}

func TestNewSlotName(t *testing.T) {
	if _, err := NewSlotName(""); err == nil {
		t.Error("expected error for empty slot name")
	}
	if _, err := NewSlotName("2.7"); err != nil {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestNewKeywordName(t *testing.T) {
	for _, good := range []string{"amd64", "~amd64", "-amd64", "-*"} {
		if _, err := NewKeywordName(good); err != nil {
			t.Errorf("%q: unexpected error: %s", good, err)
		}
	}
	if _, err := NewKeywordName(""); err == nil {
		t.Error("expected error for empty keyword")
	}
}
