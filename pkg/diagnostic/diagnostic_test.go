package diagnostic

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestDiagnostic_String(t *testing.T) {
	tests := []struct {
		name     string
		diag     Diagnostic
		expected string
	}{
		{
			name:     "page failed",
			diag:     Diagnostic{Kind: KindPageFailed, Page: 0, Cause: "transport error: connection reset"},
			expected: "page fetch failed: page 0: transport error: connection reset",
		},
		{
			name:     "owner missing",
			diag:     Diagnostic{Kind: KindOwnerMissing, Page: 1, Name: "orphan"},
			expected: "owner missing, skipped: orphan",
		},
		{
			name:     "mark failed",
			diag:     Diagnostic{Kind: KindMarkFailed, Page: NoPage, Owner: "rust-lang", Name: "rust", Status: 422, Cause: `"validation failed"`},
			expected: `star failed: rust-lang/rust (status 422): "validation failed"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.diag.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLogSink_OneLinePerDiagnostic(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := zerolog.New(zerolog.SyncWriter(buf))
	sink := NewLogSink(logger)

	sink.Report(Diagnostic{Kind: KindMarkFailed, Page: NoPage, Owner: "a", Name: "b", Status: 422, Cause: `"validation failed"`})
	sink.Report(Diagnostic{Kind: KindOwnerMissing, Page: 2, Name: "orphan"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `validation failed`) || !strings.Contains(lines[0], `"status":422`) {
		t.Errorf("mark_failed line = %s", lines[0])
	}
	if strings.Contains(lines[0], `"page"`) {
		t.Errorf("mark_failed line should not carry a page: %s", lines[0])
	}
	if !strings.Contains(lines[1], "owner missing, skipped") || !strings.Contains(lines[1], `"page":2`) {
		t.Errorf("owner_missing line = %s", lines[1])
	}
	for _, line := range lines {
		if !strings.Contains(line, `"level":"warn"`) {
			t.Errorf("diagnostic not logged as warning: %s", line)
		}
	}
}

func TestRecorder_Concurrent(t *testing.T) {
	rec := &Recorder{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := KindMarkFailed
			if i%5 == 0 {
				kind = KindOwnerMissing
			}
			rec.Report(Diagnostic{Kind: kind, Page: NoPage})
		}(i)
	}
	wg.Wait()

	if rec.Len() != 50 {
		t.Errorf("Len() = %d, want 50", rec.Len())
	}
	if got := rec.Count(KindOwnerMissing); got != 10 {
		t.Errorf("Count(owner_missing) = %d, want 10", got)
	}
	if got := rec.Count(KindMarkFailed); got != 40 {
		t.Errorf("Count(mark_failed) = %d, want 40", got)
	}
}

func TestTee(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Tee{a, b}.Report(Diagnostic{Kind: KindPageFailed, Page: 3})

	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("Tee delivered %d and %d, want 1 and 1", a.Len(), b.Len())
	}
}
