// Package assignment owns the lifecycle of writing assignments: at most
// one assignment per user may sit in a non-terminal state, submissions
// move it forward, and finished or abandoned assignments stay on record
// so the same topic is never handed out twice.
package assignment

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"Sochinenie/lib/sl"
	"Sochinenie/storage"
)

var (
	ErrNoActiveAssignment = errors.New("no active assignment")
	// ErrInconsistentState means more than one non-terminal assignment
	// exists for a user. That is a data-integrity bug; the service
	// reports it and never picks one arbitrarily.
	ErrInconsistentState = errors.New("multiple active assignments")
	ErrAlreadyAssigned   = errors.New("user already has an active assignment")
	ErrBadTransition     = errors.New("invalid assignment state transition")
)

type Service struct {
	store storage.Storage
	log   *slog.Logger
	rnd   *rand.Rand
	mutex sync.Mutex // guards rnd, requests for different users run in parallel
}

func NewService(store storage.Storage, log *slog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With(sl.Module("assignment")),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewServiceWithRand injects the randomness source, for deterministic tests.
func NewServiceWithRand(store storage.Storage, log *slog.Logger, rnd *rand.Rand) *Service {
	s := NewService(store, log)
	s.rnd = rnd
	return s
}

// Current returns the user's single non-terminal assignment.
func (s *Service) Current(ctx context.Context, userID int64) (*storage.Assignment, error) {
	active, err := s.store.ActiveAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch len(active) {
	case 0:
		return nil, ErrNoActiveAssignment
	case 1:
		return &active[0], nil
	default:
		s.log.Error("assignment invariant violated",
			slog.Int64("user", userID),
			slog.Int("count", len(active)),
		)
		return nil, ErrInconsistentState
	}
}

// Assign picks an unseen topic and opens a new ACTIVE assignment.
// It refuses if the user still has one in flight.
func (s *Service) Assign(ctx context.Context, userID int64) (*storage.Assignment, *storage.Topic, error) {
	active, err := s.store.ActiveAssignments(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(active) > 0 {
		return nil, nil, ErrAlreadyAssigned
	}

	seen, err := s.store.SeenTopicIDs(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := s.store.ActiveTopics(ctx)
	if err != nil {
		return nil, nil, err
	}

	s.mutex.Lock()
	topic, err := Pick(catalog, seen, s.rnd)
	s.mutex.Unlock()
	if err != nil {
		return nil, nil, err
	}

	a := &storage.Assignment{
		ID:        uuid.NewString(),
		UserID:    userID,
		TopicID:   topic.ID,
		State:     storage.StateActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.store.InsertAssignment(ctx, a); err != nil {
		return nil, nil, err
	}

	s.log.With(
		slog.Int64("user", userID),
		slog.String("topic", topic.ID),
	).Info("new assignment")
	return a, topic, nil
}

// Submit moves an assignment to SUBMITTED after an accepted submission.
func (s *Service) Submit(ctx context.Context, a *storage.Assignment) error {
	if a.State != storage.StateActive {
		return ErrBadTransition
	}
	a.State = storage.StateSubmitted
	return s.store.UpdateAssignment(ctx, a)
}

// Advance closes the assignment when the user moves on: a SUBMITTED one
// becomes DONE, an ACTIVE one the user walked away from becomes
// CANCELLED. The caller follows up with Assign for the next topic.
func (s *Service) Advance(ctx context.Context, a *storage.Assignment) error {
	switch a.State {
	case storage.StateSubmitted:
		a.State = storage.StateDone
	case storage.StateActive:
		a.State = storage.StateCancelled
	default:
		return ErrBadTransition
	}
	return s.store.UpdateAssignment(ctx, a)
}

// SetMessageRef records the chat message the assignment is attached to.
func (s *Service) SetMessageRef(ctx context.Context, a *storage.Assignment, messageID int) error {
	a.MessageID = messageID
	return s.store.UpdateAssignment(ctx, a)
}
