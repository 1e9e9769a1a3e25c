package status

import (
	"Go2NetAccounting/internal/model"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fixedSource struct {
	report model.CycleReport
}

func (s *fixedSource) Report() model.CycleReport { return s.report }

func TestFormatLine(t *testing.T) {
	cases := []struct {
		report model.CycleReport
		delta  uint64
		want   string
	}{
		{model.CycleReport{}, 0, "Iteration 0: 0 records (total 0, avg 0.00)"},
		{model.CycleReport{Iterations: 3, WrittenRecords: 10}, 4, "Iteration 3: 4 records (total 10, avg 3.33)"},
	}
	for _, c := range cases {
		if got := FormatLine(c.report, c.delta); got != c.want {
			t.Errorf("Expected %q, got %q", c.want, got)
		}
	}
}

func TestReporter_LineTracksDelta(t *testing.T) {
	src := &fixedSource{report: model.CycleReport{Iterations: 1, WrittenRecords: 5}}
	r := NewReporter(src, time.Hour)

	if got := r.Line(); !strings.HasPrefix(got, "Iteration 1: 5 records") {
		t.Errorf("Unexpected first line: %q", got)
	}
	src.report = model.CycleReport{Iterations: 2, WrittenRecords: 12}
	if got := r.Line(); got != "Iteration 2: 7 records (total 12, avg 6.00)" {
		t.Errorf("Unexpected second line: %q", got)
	}
}

func TestReporter_LogsPeriodically(t *testing.T) {
	// 1. Capture the reporter's log output.
	logger, hook := test.NewNullLogger()
	src := &fixedSource{report: model.CycleReport{Iterations: 1, WrittenRecords: 2}}
	r := NewReporter(src, 10*time.Millisecond)
	r.logger = logger

	// 2. Run for a few intervals.
	r.Start()
	time.Sleep(55 * time.Millisecond)
	r.Stop()

	// 3. Every entry is an info status line.
	if len(hook.AllEntries()) == 0 {
		t.Fatal("Expected at least one status line")
	}
	for _, e := range hook.AllEntries() {
		if e.Level != log.InfoLevel || !strings.HasPrefix(e.Message, "Iteration 1:") {
			t.Errorf("Unexpected entry: %v %q", e.Level, e.Message)
		}
	}
}
