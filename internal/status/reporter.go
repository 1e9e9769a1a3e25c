package status

import (
	"Go2NetAccounting/internal/model"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Source provides the counters to report on.
type Source interface {
	Report() model.CycleReport
}

// Reporter periodically logs the progress of the polling loop.
type Reporter struct {
	source   Source
	interval time.Duration
	logger   log.FieldLogger

	lastWritten uint64
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewReporter creates a Reporter that logs every interval.
func NewReporter(source Source, interval time.Duration) *Reporter {
	return &Reporter{
		source:   source,
		interval: interval,
		logger:   log.StandardLogger(),
		stopChan: make(chan struct{}),
	}
}

// Start begins periodic reporting in its own goroutine.
func (r *Reporter) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Reporter) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.logger.Info(r.Line())
		case <-r.stopChan:
			return
		}
	}
}

// Line formats the status line and advances the delta baseline.
func (r *Reporter) Line() string {
	report := r.source.Report()
	delta := report.WrittenRecords - r.lastWritten
	r.lastWritten = report.WrittenRecords
	return FormatLine(report, delta)
}

// FormatLine renders "Iteration N: D records (total T, avg A)".
// The average is 0 before the first iteration.
func FormatLine(report model.CycleReport, delta uint64) string {
	avg := 0.0
	if report.Iterations > 0 {
		avg = float64(report.WrittenRecords) / float64(report.Iterations)
	}
	return fmt.Sprintf("Iteration %d: %d records (total %d, avg %.2f)",
		report.Iterations, delta, report.WrittenRecords, avg)
}

// Stop ends reporting and waits for the goroutine to exit.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}
