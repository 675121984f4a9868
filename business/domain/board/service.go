package board

import (
	"context"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"github.com/tickboard/board/business/domain/auth"
	"github.com/tickboard/board/business/domain/tick"
	"github.com/tickboard/board/entities"
	"github.com/tickboard/board/metrics"
	"go.uber.org/zap"
	"sync"
	"time"
)

const tickTypesKey = "tick-types"

type Store interface {
	GetSequence() (uint64, error)
	GetMessage() (string, error)
	GetActive() (bool, error)
	GetTickType(id uint8) (string, error)
	GetTickTypes() ([]entities.TickType, error)
	GetTicksSince(cutoff time.Time) ([]entities.Tick, error)
}

type Authenticator interface {
	Evaluate(signature string, payload entities.Mutation) (*entities.Commit, error)
}

type TickPublisher interface {
	PublishTick(ctx context.Context, event entities.TickEvent) error
}

type Config struct {
	Location       *time.Location
	DayStartHour   int
	PublishTimeout time.Duration
	Now            func() time.Time
}

type Caches struct {
	TickTypes   *ttlcache.Cache[string, []entities.TickType]
	TickHistory *ttlcache.Cache[int64, []entities.Tick] // keyed by cutoff unix seconds
}

type Service struct {
	store         Store
	authenticator Authenticator
	publisher     TickPublisher // optional
	metrics       *metrics.BoardMetrics
	logger        *zap.SugaredLogger
	config        Config
	caches        Caches
	tickTypesLock sync.Mutex
	historyLock   sync.Mutex
}

func NewService(store Store, authenticator Authenticator, publisher TickPublisher, caches Caches, config Config,
	metrics *metrics.BoardMetrics, logger *zap.SugaredLogger) *Service {

	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Service{
		store:         store,
		authenticator: authenticator,
		publisher:     publisher,
		metrics:       metrics,
		logger:        logger,
		config:        config,
		caches:        caches,
	}
}

func (s *Service) Sequence() (uint64, error) {
	return s.store.GetSequence()
}

func (s *Service) Message() (string, error) {
	return s.store.GetMessage()
}

func (s *Service) Active() (bool, error) {
	return s.store.GetActive()
}

func (s *Service) TickTypes() ([]entities.TickType, error) {
	if s.caches.TickTypes == nil {
		return s.store.GetTickTypes()
	}

	s.tickTypesLock.Lock() // lock so that only one caller loads on a miss
	defer s.tickTypesLock.Unlock()

	item := s.caches.TickTypes.Get(tickTypesKey)
	if item != nil {
		return item.Value(), nil
	}
	tickTypes, err := s.store.GetTickTypes()
	if err != nil {
		return nil, errors.Wrap(err, "getting tick types")
	}
	s.caches.TickTypes.Set(tickTypesKey, tickTypes, ttlcache.DefaultTTL)
	return tickTypes, nil
}

// TickHistory returns the ticks of the current tick day in ascending id order with
// their creation time rendered in the reference timezone.
func (s *Service) TickHistory() ([]entities.TickHistoryEntry, error) {
	ticks, err := s.ticksOfDay()
	if err != nil {
		return nil, err
	}

	entries := make([]entities.TickHistoryEntry, 0, len(ticks))
	for _, t := range ticks {
		entries = append(entries, entities.TickHistoryEntry{
			ID:   t.ID,
			Tick: t.Type,
			Time: t.CreatedAt.In(s.config.Location).Format(entities.TickTimeLayout),
		})
	}
	return entries, nil
}

// CompactTickHistory returns the ticks of the current tick day in the compact binary
// layout.
func (s *Service) CompactTickHistory() ([]byte, error) {
	ticks, err := s.ticksOfDay()
	if err != nil {
		return nil, err
	}
	encoded, err := tick.Encode(tick.Compact(ticks, s.config.Location))
	if err != nil {
		return nil, errors.Wrap(err, "encoding compact tick history")
	}
	return encoded, nil
}

func (s *Service) ticksOfDay() ([]entities.Tick, error) {
	cutoff := tick.Since(s.config.Now(), s.config.Location, s.config.DayStartHour)
	if s.caches.TickHistory == nil {
		return s.loadTicks(cutoff)
	}

	s.historyLock.Lock()
	defer s.historyLock.Unlock()

	item := s.caches.TickHistory.Get(cutoff.Unix())
	if item != nil {
		return item.Value(), nil
	}
	ticks, err := s.loadTicks(cutoff)
	if err != nil {
		return nil, err
	}
	s.caches.TickHistory.Set(cutoff.Unix(), ticks, ttlcache.DefaultTTL)
	return ticks, nil
}

func (s *Service) loadTicks(cutoff time.Time) ([]entities.Tick, error) {
	ticks, err := s.store.GetTicksSince(cutoff)
	if err != nil {
		return nil, errors.Wrapf(err, "getting ticks since [%s]", cutoff)
	}
	return ticks, nil
}

func (s *Service) SetMessage(signature string, message string) error {
	_, err := s.apply(signature, entities.Message{Message: message})
	return err
}

func (s *Service) SetActive(signature string, active bool) error {
	_, err := s.apply(signature, entities.Active{Active: active})
	return err
}

// TriggerTick appends a tick of the given type. Unknown types are rejected before the
// signature is evaluated, so they never advance the sequence.
func (s *Service) TriggerTick(ctx context.Context, signature string, tickType uint8) error {
	label, err := s.store.GetTickType(tickType)
	if errors.Is(err, entities.ErrStoreEntityNotFound) {
		return errors.Wrapf(entities.ErrUnknownTickType, "tick type [%d]", tickType)
	}
	if err != nil {
		return errors.Wrap(err, "getting tick type")
	}

	commit, err := s.apply(signature, entities.TriggerTick{Type: tickType})
	if err != nil {
		return err
	}

	if s.caches.TickHistory != nil {
		s.historyLock.Lock()
		s.caches.TickHistory.DeleteAll()
		s.historyLock.Unlock()
	}
	if commit.Tick != nil {
		s.publish(ctx, commit, label)
	}
	return nil
}

func (s *Service) apply(signature string, mutation entities.Mutation) (*entities.Commit, error) {
	kind := mutationKind(mutation)

	commit, err := s.authenticator.Evaluate(signature, mutation)
	if errors.Is(err, auth.ErrUnauthorized) {
		s.metrics.IncRejected(kind)
		s.logger.Infow("Rejected mutation.", "kind", kind, "reason", err.Error())
		return nil, err
	}
	if err != nil {
		s.metrics.IncFailed(kind)
		return nil, errors.Wrapf(err, "applying [%s] mutation", kind)
	}

	s.metrics.IncAccepted(kind)
	s.metrics.SetSequence(commit.Sequence)
	s.logger.Infow("Accepted mutation.", "kind", kind, "sequence", commit.Sequence)
	return commit, nil
}

func (s *Service) publish(ctx context.Context, commit *entities.Commit, label string) {
	if s.publisher == nil {
		return
	}
	event := entities.TickEvent{
		ID:        commit.Tick.ID,
		Type:      commit.Tick.Type,
		Label:     label,
		Sequence:  commit.Sequence,
		CreatedAt: commit.Tick.CreatedAt.UnixMilli(),
	}

	if s.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.PublishTimeout)
		defer cancel()
	}
	// the tick is committed at this point, a failed publish does not fail the request
	err := s.publisher.PublishTick(ctx, event)
	if err != nil {
		s.metrics.IncPublishFailures()
		s.logger.Warnw("Failed to publish tick event.", "id", event.ID, "error", err)
		return
	}
	s.metrics.IncPublishedTicks()
}

func mutationKind(mutation entities.Mutation) string {
	switch mutation.(type) {
	case entities.Message:
		return metrics.KindMessage
	case entities.Active:
		return metrics.KindActive
	case entities.TriggerTick:
		return metrics.KindTick
	default:
		return "unknown"
	}
}
