package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/domain/audit"
)

// AuditService provides async decision logging with a buffered channel
// and a background worker. Decisions are recorded without blocking the
// authorization hot path; when the channel stays full past the send
// timeout, the record is dropped and counted rather than stalling a
// decision.
//
// AuditService itself implements audit.Store, so it can wrap any sink
// (file, sqlite, memory) transparently.
type AuditService struct {
	store         audit.Store
	records       chan audit.Record
	wg            sync.WaitGroup
	stopOnce      sync.Once
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration

	channelSize int
	// sendTimeout bounds backpressure: 0 drops immediately when the
	// channel is full, >0 blocks up to the timeout before dropping.
	sendTimeout time.Duration
	dropCount   atomic.Int64
	// onDrop, when set, is invoked once per dropped record. Set before
	// Start; typically wired to a metrics counter.
	onDrop func()

	// warningThreshold is the channel depth percentage that triggers a
	// rate-limited capacity warning.
	warningThreshold int
	lastWarning      atomic.Int64
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithBatchSize sets the number of records to batch before writing.
func WithBatchSize(size int) AuditOption {
	return func(s *AuditService) {
		s.batchSize = size
	}
}

// WithFlushInterval sets the interval to flush pending records.
func WithFlushInterval(interval time.Duration) AuditOption {
	return func(s *AuditService) {
		s.flushInterval = interval
	}
}

// WithChannelSize sets the size of the record channel buffer.
func WithChannelSize(size int) AuditOption {
	return func(s *AuditService) {
		s.records = make(chan audit.Record, size)
		s.channelSize = size
	}
}

// WithSendTimeout sets the backpressure timeout.
// 0 = drop immediately when full, >0 = block up to this duration.
func WithSendTimeout(timeout time.Duration) AuditOption {
	return func(s *AuditService) {
		s.sendTimeout = timeout
	}
}

// NewAuditService creates an AuditService wrapping the given sink.
func NewAuditService(store audit.Store, logger *slog.Logger, opts ...AuditOption) *AuditService {
	const defaultChannelSize = 1000
	s := &AuditService{
		store:            store,
		records:          make(chan audit.Record, defaultChannelSize),
		logger:           logger,
		batchSize:        100,
		flushInterval:    time.Second,
		channelSize:      defaultChannelSize,
		sendTimeout:      100 * time.Millisecond,
		warningThreshold: 80,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnDrop registers a hook invoked once per dropped record. Must be
// called before Start.
func (s *AuditService) OnDrop(fn func()) {
	s.onDrop = fn
}

// Start begins the background worker that batches and writes records.
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record sends a decision record to the background worker. It tries a
// non-blocking send first, then blocks up to sendTimeout; past that the
// record is dropped and counted.
func (s *AuditService) Record(rec audit.Record) {
	if s.warningThreshold > 0 {
		depth := len(s.records)
		if depth >= s.channelSize*s.warningThreshold/100 {
			s.warnChannelDepth(depth)
		}
	}

	select {
	case s.records <- rec:
		return
	default:
	}

	if s.sendTimeout <= 0 {
		s.recordDrop(rec)
		return
	}

	select {
	case s.records <- rec:
	case <-time.After(s.sendTimeout):
		s.recordDrop(rec)
	}
}

func (s *AuditService) recordDrop(rec audit.Record) {
	drops := s.dropCount.Add(1)
	if s.onDrop != nil {
		s.onDrop()
	}
	s.logger.Warn("decision record dropped",
		"request_id", rec.RequestID,
		"outcome", rec.Outcome,
		"total_drops", drops,
	)
}

// warnChannelDepth logs a capacity warning, rate-limited to once per
// second.
func (s *AuditService) warnChannelDepth(depth int) {
	now := time.Now().UnixNano()
	last := s.lastWarning.Load()
	if now-last < int64(time.Second) {
		return
	}
	if s.lastWarning.CompareAndSwap(last, now) {
		s.logger.Warn("decision log channel approaching capacity",
			"depth", depth,
			"capacity", s.channelSize,
			"percent", depth*100/s.channelSize,
		)
	}
}

// DroppedRecords returns the total dropped records (for metrics and
// health reporting).
func (s *AuditService) DroppedRecords() int64 {
	return s.dropCount.Load()
}

// ChannelDepth returns the current channel usage (for monitoring).
func (s *AuditService) ChannelDepth() int {
	return len(s.records)
}

// ChannelCapacity returns the channel buffer size.
func (s *AuditService) ChannelCapacity() int {
	return s.channelSize
}

// Stop signals the worker to stop and waits for it to finish. Pending
// records are flushed before returning. Record must not be called after
// Stop. Safe to call more than once.
func (s *AuditService) Stop() {
	s.stopOnce.Do(func() { close(s.records) })
	s.wg.Wait()
}

// worker collects and flushes decision records.
func (s *AuditService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.Record, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-s.records:
			if !ok {
				// Channel closed: final flush with a bounded deadline.
				if len(batch) > 0 {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					s.flush(flushCtx, batch)
					cancel()
				}
				return
			}
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain whatever Stop leaves behind, then flush bounded.
			for rec := range s.records {
				batch = append(batch, rec)
			}
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				s.flush(flushCtx, batch)
				cancel()
			}
			return
		}
	}
}

// flush writes a batch to the sink. Errors are logged, never propagated:
// audit must not fail authorizations.
func (s *AuditService) flush(ctx context.Context, batch []audit.Record) {
	if err := s.store.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to write decision batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// Append implements audit.Store by handing each record to the worker.
// It never returns an error: overflow is counted as drops instead.
func (s *AuditService) Append(_ context.Context, records ...audit.Record) error {
	for _, rec := range records {
		s.Record(rec)
	}
	return nil
}

// Flush delegates to the wrapped sink. Records still queued in the
// worker are flushed by Stop, not here.
func (s *AuditService) Flush(ctx context.Context) error {
	return s.store.Flush(ctx)
}

// Close stops the worker, flushing pending records, and closes the
// wrapped sink.
func (s *AuditService) Close() error {
	s.Stop()
	return s.store.Close()
}

// Compile-time interface verification.
var _ audit.Store = (*AuditService)(nil)
