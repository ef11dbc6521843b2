package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/example/encounters/internal/models"
)

// Sink persists encounters. Emit is called in discovery order.
type Sink interface {
	Emit(ctx context.Context, e models.Encounter) error
	Close() error
}

// MemorySink keeps encounters in memory.
type MemorySink struct {
	mu         sync.RWMutex
	encounters []models.Encounter
	closed     bool
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Emit(ctx context.Context, e models.Encounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.encounters = append(m.encounters, e)
	return nil
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Encounters returns a copy of everything emitted so far.
func (m *MemorySink) Encounters() []models.Encounter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Encounter, len(m.encounters))
	copy(out, m.encounters)
	return out
}

var ErrClosed = errors.New("sink closed")

// Fanout emits to every sink in order and stops at the first failure.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, e models.Encounter) error {
	for _, s := range f {
		if err := s.Emit(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, even after a failure, and joins the errors.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
