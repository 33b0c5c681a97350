package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/ashenguild/metrics"
	"github.com/kasuganosora/ashenguild/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// Transports recorded in audit_logs.transport.
const (
	TransportREST = "rest"
	TransportSOAP = "soap"
)

// Actions recorded for mutations.
const (
	ActionCreateGuild     = "guild.create"
	ActionJoinGuild       = "guild.join"
	ActionCreateCharacter = "character.create"
	ActionAddItem         = "character.add_item"
	ActionCreateItem      = "item.create"
)

// Entry holds one guild mutation to be recorded.
type Entry struct {
	TraceID       string
	Transport     string
	Action        string
	GuildID       *int64
	CharacterName string
	Request       interface{}
	Response      interface{}
	Error         string
	IP            string
	DurationMs    int
}

// Service writes audit entries asynchronously in batches. Entries are
// dropped with a warning when the queue is full; auditing never blocks a
// request.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
	dropped  atomic.Int64

	// mu orders enqueues against Stop: once stopped is set under the write
	// lock no further entry reaches ch, so the worker's final drain sees all.
	mu      sync.RWMutex
	stopped bool
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an entry for the next batch write.
func (svc *Service) Log(entry Entry) {
	record := &model.AuditLog{
		TraceID:       entry.TraceID,
		Transport:     entry.Transport,
		Action:        entry.Action,
		GuildID:       entry.GuildID,
		CharacterName: entry.CharacterName,
		Request:       encode(entry.Request),
		Response:      encode(entry.Response),
		Error:         entry.Error,
		IP:            entry.IP,
		DurationMs:    entry.DurationMs,
	}

	svc.mu.RLock()
	defer svc.mu.RUnlock()
	if svc.stopped {
		svc.drop()
		svc.logger.Warn("audit service stopped, dropping entry", zap.String("action", entry.Action))
		return
	}
	select {
	case svc.ch <- record:
	default:
		svc.drop()
		svc.logger.Warn("audit queue full, dropping entry",
			zap.String("action", entry.Action), zap.String("trace_id", entry.TraceID))
	}
}

func (svc *Service) drop() {
	svc.dropped.Add(1)
	metrics.RecordAudit(metrics.AuditDropped, 1)
}

// Dropped reports how many entries were discarded since New.
func (svc *Service) Dropped() int64 { return svc.dropped.Load() }

// Stop flushes queued entries and shuts down the worker. It blocks until the
// worker has finished and is safe to call more than once.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() {
		svc.mu.Lock()
		svc.stopped = true
		svc.mu.Unlock()
		close(svc.stopCh)
	})
	svc.wg.Wait()
}

func encode(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(&batch, batchSize).Error; err != nil {
			metrics.RecordAudit(metrics.AuditFailed, len(batch))
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		} else {
			metrics.RecordAudit(metrics.AuditWritten, len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
