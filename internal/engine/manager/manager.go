package manager

import (
	"Go2NetAccounting/internal/accounting"
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/engine/aggregator"
	"Go2NetAccounting/internal/engine/classifier"
	"Go2NetAccounting/internal/engine/retry"
	"Go2NetAccounting/internal/model"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// graceFactor is the number of poll intervals Stop waits for an in-flight cycle.
const graceFactor = 3

// fixedInterval fires once at its first activation and then every period,
// measured from the previous activation.
type fixedInterval struct {
	period  time.Duration
	started atomic.Bool
}

func newFixedInterval(period time.Duration) *fixedInterval {
	return &fixedInterval{period: period}
}

func (f *fixedInterval) Next(t time.Time) time.Time {
	if f.started.CompareAndSwap(false, true) {
		return t
	}
	return t.Add(f.period)
}

// Manager runs the fetch, parse, aggregate, classify and write pipeline on a fixed cadence.
type Manager struct {
	router    string
	interval  time.Duration
	fetcher   model.Fetcher
	subnets   *classifier.SubnetSet
	sink      *retry.Sink
	publisher model.Publisher
	observers []model.CycleObserver

	state       atomic.Int32
	iterations  atomic.Uint64
	failed      atomic.Uint64
	lastSuccess atomic.Time
	lastError   atomic.String

	scheduler *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
}

// NewManager creates a Manager. The subnet list and retry policy are validated here,
// so a misconfigured service never ticks.
func NewManager(cfg *config.Config, fetcher model.Fetcher, writer model.Writer) (*Manager, error) {
	interval, err := cfg.PollInterval()
	if err != nil {
		return nil, err
	}

	subnets, err := classifier.NewSubnetSet(cfg.Subnets)
	if err != nil {
		return nil, fmt.Errorf("failed to build subnet set: %w", err)
	}

	router := cfg.Router.Address
	if router == "" {
		router = cfg.Router.URL()
	}

	sink, err := retry.NewSink(writer, router, retry.PolicyFromConfig(cfg.Retry))
	if err != nil {
		return nil, fmt.Errorf("failed to create retrying sink: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		router:   router,
		interval: interval,
		fetcher:  fetcher,
		subnets:  subnets,
		sink:     sink,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// SetPublisher announces every successful cycle through p. Must be called before Start.
func (m *Manager) SetPublisher(p model.Publisher) {
	m.publisher = p
}

// AddObserver registers o for every cycle outcome. Must be called before Start.
func (m *Manager) AddObserver(o model.CycleObserver) {
	m.observers = append(m.observers, o)
}

// Router returns the router identifier attached to every stored point.
func (m *Manager) Router() string {
	return m.router
}

// Subnets returns the LAN subnets used for classification.
func (m *Manager) Subnets() *classifier.SubnetSet {
	return m.subnets
}

// Start schedules a cycle every poll interval. The first cycle runs right away.
// A tick that finds the previous cycle still running is skipped.
func (m *Manager) Start() {
	logger := cron.PrintfLogger(log.StandardLogger())
	m.scheduler = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	m.scheduler.Schedule(newFixedInterval(m.interval), cron.FuncJob(m.tick))
	m.scheduler.Start()
	log.Printf("Manager started: polling %s every %s, LAN subnets %s", m.router, m.interval, m.subnets)
}

func (m *Manager) tick() {
	// Errors were already logged and counted by RunCycle.
	_ = m.RunCycle(m.ctx)
}

// RunCycle executes a single polling cycle. A failure is logged, counted and
// returned; it never affects later cycles.
func (m *Manager) RunCycle(ctx context.Context) error {
	result := model.CycleResult{ID: uuid.NewString(), Started: time.Now()}
	logger := log.WithFields(log.Fields{"cycle": result.ID, "router": m.router})

	batch, err := m.runCycleRecovered(ctx, logger, &result)
	m.state.Store(int32(model.StateIdle))
	result.Duration = time.Since(result.Started)
	result.Err = err

	if err != nil {
		m.failed.Inc()
		m.lastError.Store(err.Error())
		logger.Errorf("Cycle failed after %s: %v", result.Duration, err)
	} else {
		m.iterations.Inc()
		m.lastSuccess.Store(time.Now())
		m.lastError.Store("")
		logger.Debugf("Cycle completed in %s: %d records, %d addresses (%d local), %d written",
			result.Duration, result.Records, result.Addresses, result.LocalAddresses, result.Written)
		m.publish(ctx, logger, batch)
	}

	for _, o := range m.observers {
		o.ObserveCycle(result)
	}
	return err
}

// runCycleRecovered turns a panic inside the pipeline into a failed cycle.
func (m *Manager) runCycleRecovered(ctx context.Context, logger *log.Entry, result *model.CycleResult) (batch model.TrafficBatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked in state %s: %v", m.State(), r)
		}
	}()
	return m.runCycle(ctx, logger, result)
}

func (m *Manager) runCycle(ctx context.Context, logger *log.Entry, result *model.CycleResult) (model.TrafficBatch, error) {
	m.state.Store(int32(model.StateFetching))
	body, err := m.fetcher.Fetch(ctx)
	if err != nil {
		return model.TrafficBatch{}, err
	}

	m.state.Store(int32(model.StateParsing))
	records := accounting.ParseDocument(body, accounting.WarnMalformed(logger))
	result.Records = len(records)

	m.state.Store(int32(model.StateAggregating))
	traffic := aggregator.Aggregate(records)
	result.Addresses = len(traffic)

	m.state.Store(int32(model.StateClassifying))
	local := make(map[string]bool, len(traffic))
	for addr := range traffic {
		if m.subnets.Contains(addr) {
			local[addr] = true
		}
	}
	result.LocalAddresses = len(local)

	m.state.Store(int32(model.StateWriting))
	batch := m.sink.Batch(result.ID, local, traffic)
	written, err := m.sink.WriteBatch(ctx, batch)
	if err != nil {
		return model.TrafficBatch{}, err
	}
	result.Written = written
	return batch, nil
}

func (m *Manager) publish(ctx context.Context, logger *log.Entry, batch model.TrafficBatch) {
	if m.publisher == nil || len(batch.Points) == 0 {
		return
	}
	if err := m.publisher.Publish(ctx, batch); err != nil {
		logger.Warnf("Failed to publish cycle event: %v", err)
	}
}

// State returns the current position inside a cycle.
func (m *Manager) State() model.CycleState {
	return model.CycleState(m.state.Load())
}

// Report returns a snapshot of the cycle counters.
func (m *Manager) Report() model.CycleReport {
	return model.CycleReport{
		Iterations:     m.iterations.Load(),
		WrittenRecords: m.sink.Written(),
		FailedCycles:   m.failed.Load(),
		LastSuccess:    m.lastSuccess.Load(),
		LastError:      m.lastError.Load(),
		State:          m.State(),
	}
}

// Stop gracefully shuts down the manager.
func (m *Manager) Stop() {
	m.stopOnce.Do(m.stop)
}

func (m *Manager) stop() {
	log.Println("Manager stopping...")
	defer m.cancel()
	if m.scheduler == nil {
		return
	}

	// 1. Stop scheduling new cycles.
	done := m.scheduler.Stop()

	// 2. Give an in-flight cycle the grace period to finish.
	grace := graceFactor * m.interval
	select {
	case <-done.Done():
		log.Println("Manager stopped.")
		return
	case <-time.After(grace):
		log.Warnf("Cycle still running after %s, cancelling it", grace)
	}

	// 3. Force stop: fetch and backoff sleeps observe the cancelled context.
	m.cancel()
	select {
	case <-done.Done():
		log.Println("Manager stopped.")
	case <-time.After(grace):
		log.Warn("Cycle did not return after cancellation; giving up waiting")
	}
}
