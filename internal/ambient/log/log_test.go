package log

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestLoglnWritesLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Logln("hello", "world")
	l.Close()

	if got := buf.String(); got != "hello world\n" {
		t.Errorf("got %q, want %q", got, "hello world\n")
	}
}

func TestLogfFormats(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Logf("%s=%d", "n", 3)
	l.Close()

	if got := buf.String(); got != "n=3" {
		t.Errorf("got %q, want %q", got, "n=3")
	}
}

func TestLogEnginefln(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.LogEnginefln("fetching %s", "dev-libs/foo-1.0")
	l.Close()

	if got := buf.String(); got != "pkgcore: fetching dev-libs/foo-1.0\n" {
		t.Errorf("got %q", got)
	}
}

func TestConcurrentProducersDoNotInterleaveWithinOneCall(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Logf("line-%d\n", n)
		}(i)
	}
	wg.Wait()
	l.Close()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 fully-formed lines with no interleaving, got %d: %q", len(lines), lines)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "line-") {
			t.Errorf("expected every line to be a complete, unmangled message, got %q", line)
		}
	}
}
