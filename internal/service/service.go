// Package service runs the accident, report, claim and subrogation
// workflows on top of a store.Store.
//
// Each operation is one store transaction. Events are handed to the
// Notifier only after that transaction has committed, and only when the
// operation actually changed something: a retried call that finds its
// effect already applied returns the current state and emits nothing.
package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
	"github.com/punchamoorthee/crashledger/internal/narrative"
	"github.com/punchamoorthee/crashledger/internal/store"
	"go.uber.org/zap"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crashledger_transitions_total",
		Help: "Committed state transitions, labeled by state machine and target state",
	}, []string{"machine", "to"})

	balanceQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crashledger_ledger_balance_queries_total",
		Help: "Net balance computations served",
	})
)

// Notifier receives committed events. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, e domain.Event)
}

// LogNotifier writes every event to a logger.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("events")}
}

func (n *LogNotifier) Notify(ctx context.Context, e domain.Event) {
	n.log.Info("event",
		zap.String("kind", string(e.Kind)),
		zap.String("identifier", e.AccidentID.String()),
		zap.String("subject", e.SubjectID),
		zap.String("status", e.Status),
		zap.Time("at", e.At),
	)
}

type Params struct {
	Store    store.Store
	Issuer   *identifier.Issuer
	GenID    *snowflake.Node
	Log      *zap.Logger
	Notifier Notifier          // defaults to a LogNotifier
	Render   domain.RenderFunc // defaults to narrative.Render
	Now      func() time.Time  // defaults to time.Now
}

type Service struct {
	store    store.Store
	issuer   *identifier.Issuer
	genID    *snowflake.Node
	log      *zap.Logger
	notifier Notifier
	render   domain.RenderFunc
	now      func() time.Time
}

func New(p Params) *Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:    p.Store,
		issuer:   p.Issuer,
		genID:    p.GenID,
		log:      log.Named("service"),
		notifier: p.Notifier,
		render:   p.Render,
		now:      p.Now,
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(log)
	}
	if s.render == nil {
		s.render = narrative.Render
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

func (s *Service) emit(ctx context.Context, machine string, e domain.Event) {
	if machine != "" && e.Status != "" {
		transitionsTotal.WithLabelValues(machine, e.Status).Inc()
	}
	s.notifier.Notify(ctx, e)
}

func checkID(id identifier.ID) error {
	if !identifier.Validate(id.String()) {
		return domain.ErrInvalidIdentifier
	}
	return nil
}
