package tickguard

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRunRecovers(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	if Run(log, "test", func() { panic("boom") }) {
		t.Fatalf("expected a panicking function to report failure")
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected the panic to be logged, got %q", buf.String())
	}
	if !Run(log, "test", func() {}) {
		t.Fatalf("expected a returning function to report success")
	}
}
