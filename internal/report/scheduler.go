package report

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"
)

// DefaultReportHour is the local hour at which the daily report fires.
const DefaultReportHour = 21

// ReportHourFromEnv reads RAIZCORE_REPORT_HOUR, falling back to the
// default when unset or out of range.
func ReportHourFromEnv() int {
	raw := os.Getenv("RAIZCORE_REPORT_HOUR")
	if raw == "" {
		return DefaultReportHour
	}
	hour, err := strconv.Atoi(raw)
	if err != nil || hour < 0 || hour > 23 {
		return DefaultReportHour
	}
	return hour
}

// Scheduler fires a report export once per day at a configured hour.
type Scheduler struct {
	worker   *Worker
	hour     int
	operator string
	formats  []Format
	clock    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerOption customises a Scheduler.
type SchedulerOption func(*Scheduler)

// WithHour sets the firing hour (0-23).
func WithHour(hour int) SchedulerOption {
	return func(s *Scheduler) {
		if hour >= 0 && hour <= 23 {
			s.hour = hour
		}
	}
}

// WithOperator sets the actor recorded on scheduled exports.
func WithOperator(name string) SchedulerOption {
	return func(s *Scheduler) { s.operator = name }
}

// WithFormats sets the renderings produced by scheduled exports.
func WithFormats(formats ...Format) SchedulerOption {
	return func(s *Scheduler) { s.formats = formats }
}

// WithSchedulerClock overrides the time source, used in tests.
func WithSchedulerClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewScheduler builds a daily scheduler over the export worker.
func NewScheduler(worker *Worker, opts ...SchedulerOption) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		worker:   worker,
		hour:     DefaultReportHour,
		operator: "sistema",
		formats:  []Format{FormatText},
		clock:    func() time.Time { return time.Now().UTC() },
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextRun returns the next firing instant strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start launches the scheduling loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop halts the loop and waits for it to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		now := s.clock()
		timer := time.NewTimer(s.NextRun(now).Sub(now))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire()
		}
	}
}

// fire enqueues the report for the day that just ended at the firing hour.
func (s *Scheduler) fire() {
	_, _ = s.worker.EnqueueExport(s.ctx, ExportInput{
		Date:        s.clock(),
		Formats:     s.formats,
		RequestedBy: s.operator,
	})
}

// Fire triggers one scheduled export immediately. Exposed for manual
// runs and tests.
func (s *Scheduler) Fire() { s.fire() }
