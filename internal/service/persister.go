package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/store"
	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
	"github.com/zyeon-ai/realtime-gateway/pkg/metrics"
)

// EventPublisher receives persisted turns and session lifecycle events.
type EventPublisher interface {
	PublishTurn(ctx context.Context, turn *model.Turn) error
	PublishSession(ctx context.Context, event string, session *model.Session) error
}

type jobKind int

const (
	jobTurn jobKind = iota
	jobUserActivity
)

type persistJob struct {
	kind   jobKind
	turn   model.Turn
	userID string
}

// PersisterConfig sizes the dispatch queue.
type PersisterConfig struct {
	QueueSize int
	Workers   int
	// Timeout bounds each store write.
	Timeout time.Duration
}

// Persister writes turns and user activity off the response path. A full
// queue drops the write and logs the durability gap.
type Persister struct {
	store     *store.Store
	publisher EventPublisher
	logger    *logger.Logger
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan persistJob
	wg     sync.WaitGroup
}

// NewPersister starts the worker pool. publisher may be nil.
func NewPersister(st *store.Store, publisher EventPublisher, cfg PersisterConfig, log *logger.Logger) *Persister {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	p := &Persister{
		store:     st,
		publisher: publisher,
		logger:    log.Named("persister"),
		timeout:   cfg.Timeout,
		queue:     make(chan persistJob, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

// EnqueueTurn schedules a turn write. It reports false when the turn was
// dropped.
func (p *Persister) EnqueueTurn(turn model.Turn) bool {
	if !p.store.Available() && p.publisher == nil {
		return false
	}
	return p.enqueue(persistJob{kind: jobTurn, turn: turn})
}

// TouchUser schedules a user activity upsert.
func (p *Persister) TouchUser(userID string) bool {
	if !p.store.Available() {
		return false
	}
	return p.enqueue(persistJob{kind: jobUserActivity, userID: userID})
}

func (p *Persister) enqueue(job persistJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.gap(job, "persister closed", nil)
		return false
	}
	select {
	case p.queue <- job:
		return true
	default:
		p.gap(job, "persistence queue full", nil)
		return false
	}
}

// PublishSession forwards a session event to the publisher, if any.
func (p *Persister) PublishSession(ctx context.Context, event string, session *model.Session) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishSession(ctx, event, session); err != nil {
		p.logger.Warn("failed to publish session event",
			zap.String("event", event),
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
	}
}

// Close stops accepting work and waits for queued writes until ctx is done.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("persister closed with writes pending", zap.Int("pending", len(p.queue)))
		return ctx.Err()
	}
}

func (p *Persister) work() {
	defer p.wg.Done()
	for job := range p.queue {
		p.run(job)
	}
}

func (p *Persister) run(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	switch job.kind {
	case jobUserActivity:
		if err := p.store.UpdateUserActivity(ctx, job.userID); err != nil {
			p.logger.Warn("failed to update user activity", zap.String("user_id", job.userID), zap.Error(err))
		}

	case jobTurn:
		turn := job.turn
		if p.store.Available() {
			id, err := p.store.CreateConversation(ctx, &turn)
			if err != nil {
				metrics.RecordPersistence("error")
				p.gap(job, "failed to persist turn", err)
				return
			}
			turn.ConversationID = id
			metrics.RecordPersistence("ok")
		}
		if p.publisher != nil {
			if err := p.publisher.PublishTurn(ctx, &turn); err != nil {
				p.logger.Warn("failed to publish turn", zap.String("user_id", turn.UserID), zap.Error(err))
			}
		}
	}
}

func (p *Persister) gap(job persistJob, msg string, err error) {
	if job.kind == jobTurn && err == nil {
		metrics.RecordPersistence("dropped")
	}
	fields := []zap.Field{zap.Bool("durability_gap", job.kind == jobTurn)}
	if job.kind == jobTurn {
		fields = append(fields,
			zap.String("user_id", job.turn.UserID),
			zap.String("conversation_id", job.turn.ConversationID),
			zap.String("message_type", string(job.turn.MessageType)),
		)
	} else {
		fields = append(fields, zap.String("user_id", job.userID))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	p.logger.Warn(msg, fields...)
}
