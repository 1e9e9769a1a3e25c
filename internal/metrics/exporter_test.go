package metrics

import (
	"Go2NetAccounting/internal/model"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fixedSource struct {
	report model.CycleReport
}

func (s *fixedSource) Report() model.CycleReport { return s.report }

func TestExporter_Counters(t *testing.T) {
	src := &fixedSource{report: model.CycleReport{
		Iterations:     4,
		WrittenRecords: 12,
		FailedCycles:   1,
		LastSuccess:    time.Unix(1700000000, 0),
	}}
	e := NewExporter(src, "192.168.88.1")

	expected := `
# HELP ns_accounting_iterations_total Number of successfully completed polling cycles.
# TYPE ns_accounting_iterations_total counter
ns_accounting_iterations_total{router="192.168.88.1"} 4
# HELP ns_accounting_written_records_total Number of traffic points accepted by the storage writer.
# TYPE ns_accounting_written_records_total counter
ns_accounting_written_records_total{router="192.168.88.1"} 12
# HELP ns_accounting_failed_cycles_total Number of polling cycles that failed to fetch or write.
# TYPE ns_accounting_failed_cycles_total counter
ns_accounting_failed_cycles_total{router="192.168.88.1"} 1
# HELP ns_accounting_last_success_timestamp_seconds Unix time of the last successful cycle.
# TYPE ns_accounting_last_success_timestamp_seconds gauge
ns_accounting_last_success_timestamp_seconds{router="192.168.88.1"} 1.7e+09
`
	err := testutil.CollectAndCompare(e, strings.NewReader(expected),
		"ns_accounting_iterations_total",
		"ns_accounting_written_records_total",
		"ns_accounting_failed_cycles_total",
		"ns_accounting_last_success_timestamp_seconds",
	)
	if err != nil {
		t.Errorf("Unexpected metrics: %v", err)
	}
}

func TestExporter_ObserveCycle(t *testing.T) {
	e := NewExporter(&fixedSource{}, "r1")
	e.ObserveCycle(model.CycleResult{Duration: 200 * time.Millisecond})
	e.ObserveCycle(model.CycleResult{Duration: time.Second, Err: errors.New("fetch failed")})
	e.ObserveCycle(model.CycleResult{Duration: 300 * time.Millisecond})

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(e); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	counts := map[string]uint64{}
	for _, mf := range families {
		if mf.GetName() != "ns_accounting_cycle_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" {
					counts[lp.GetValue()] = m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	if counts["success"] != 2 || counts["failure"] != 1 {
		t.Errorf("Unexpected histogram counts: %v", counts)
	}
}
