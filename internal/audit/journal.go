package audit

/*
Журнал вызовов релея. События приходят из hot path обработчиков, поэтому Log
никогда не блокирует: при переполнении буфера событие уходит в zap и теряется для БД.
Воркер копит пачку и пишет ее одним INSERT по таймеру или при достижении лимита.
Stop закрывает вход, вычитывает остаток и делает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняются события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []CallEvent) error
}

// Recorder — то, что нужно сервисам релея
type Recorder interface {
	Log(event CallEvent)
}

// Options — размеры буфера и пачки. Нули заменяются значениями по умолчанию.
type Options struct {
	Buffer        int
	Batch         int
	FlushInterval time.Duration
	// OnFill получает текущую заполненность буфера (метрика backpressure)
	OnFill func(n int)
}

type Journal struct {
	ch     chan CallEvent
	repo   StorageInterface
	logger *zap.Logger
	opts   Options
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewJournal(repo StorageInterface, opts Options, logger *zap.Logger) *Journal {
	if opts.Buffer <= 0 {
		opts.Buffer = 10000
	}
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Journal{
		ch:     make(chan CallEvent, opts.Buffer),
		repo:   repo,
		logger: logger.Named("journal"),
		opts:   opts,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop запирает вход и ждет, пока воркер все допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.logger.Info("stopping journal: flushing buffer...")
	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

func (j *Journal) Log(event CallEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn("journal event dropped: journal is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: обработчик не ждет БД
	select {
	case j.ch <- event:
		if j.opts.OnFill != nil {
			j.opts.OnFill(len(j.ch))
		}
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("op", event.Op),
			zap.String("trace_id", event.TraceID),
			zap.Int("status", event.Status),
		)
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]CallEvent, 0, j.opts.Batch)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к моменту остановки уже отменен
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = make([]CallEvent, 0, j.opts.Batch)
		if j.opts.OnFill != nil {
			j.opts.OnFill(len(j.ch))
		}
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				flush() // Финальный сброс
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= j.opts.Batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// LogSink — хранилище для запуска без БД: пачка уходит в структурированный лог.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("journal-sink")}
}

func (s *LogSink) WriteBatch(_ context.Context, events []CallEvent) error {
	for _, e := range events {
		s.logger.Info("relay call",
			zap.String("id", e.ID),
			zap.String("trace_id", e.TraceID),
			zap.String("route", e.Route),
			zap.String("op", e.Op),
			zap.String("upstream", e.Upstream),
			zap.String("resource", e.Resource),
			zap.Int("status", e.Status),
			zap.Bool("fallback", e.Fallback),
			zap.Int64("duration_ms", e.DurationMs),
			zap.String("error", e.Error),
		)
	}
	return nil
}

// Nop — для тестов и сервисов, которым журнал не нужен
type Nop struct{}

func (Nop) Log(CallEvent) {}
