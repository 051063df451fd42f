package mocks

import (
	"context"
	"fmt"
	"time"

	"github.com/maksimkurb/keen-netstate/src/internal/checkpoint"
)

// MockCheckpointer is a mock implementation of the Checkpointer interface.
//
// By default every Create returns a fresh MockCheckpoint, recorded in
// Checkpoints.
type MockCheckpointer struct {
	// CreateFunc is called by Create if not nil
	CreateFunc func(ctx context.Context, timeout time.Duration) (checkpoint.Checkpoint, error)

	Checkpoints []*MockCheckpoint
	CreateCalls int
}

// Create returns a new MockCheckpoint.
func (m *MockCheckpointer) Create(ctx context.Context, timeout time.Duration) (checkpoint.Checkpoint, error) {
	m.CreateCalls++
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, timeout)
	}
	cp := NewMockCheckpoint(fmt.Sprintf("mock-%d", m.CreateCalls), timeout)
	m.Checkpoints = append(m.Checkpoints, cp)
	return cp, nil
}

// Last returns the most recently created checkpoint, nil when none was.
func (m *MockCheckpointer) Last() *MockCheckpoint {
	if len(m.Checkpoints) == 0 {
		return nil
	}
	return m.Checkpoints[len(m.Checkpoints)-1]
}

// NewMockCheckpointer creates a new mock checkpointer.
func NewMockCheckpointer() *MockCheckpointer {
	return &MockCheckpointer{}
}

// MockCheckpoint is a mock implementation of checkpoint.Checkpoint.
type MockCheckpoint struct {
	IDValue       string
	TimeoutValue  time.Duration
	DeadlineValue time.Time

	// ExtendFunc is called by Extend if not nil
	ExtendFunc func(ctx context.Context, d time.Duration) error
	// CommitFunc is called by Commit if not nil
	CommitFunc func(ctx context.Context) error
	// RollbackFunc is called by Rollback if not nil
	RollbackFunc func(ctx context.Context) error

	// Track calls for verification in tests
	Extensions    []time.Duration
	ExtendCalls   int
	CommitCalls   int
	RollbackCalls int
}

// NewMockCheckpoint creates a checkpoint whose window starts now.
func NewMockCheckpoint(id string, timeout time.Duration) *MockCheckpoint {
	return &MockCheckpoint{IDValue: id, TimeoutValue: timeout, DeadlineValue: time.Now().Add(timeout)}
}

func (m *MockCheckpoint) ID() string { return m.IDValue }

func (m *MockCheckpoint) Timeout() time.Duration { return m.TimeoutValue }

func (m *MockCheckpoint) Deadline() time.Time { return m.DeadlineValue }

// Extend restarts the window unless ExtendFunc fails.
func (m *MockCheckpoint) Extend(ctx context.Context, d time.Duration) error {
	m.ExtendCalls++
	m.Extensions = append(m.Extensions, d)
	if m.ExtendFunc != nil {
		if err := m.ExtendFunc(ctx, d); err != nil {
			return err
		}
	}
	m.TimeoutValue = d
	m.DeadlineValue = time.Now().Add(d)
	return nil
}

func (m *MockCheckpoint) Commit(ctx context.Context) error {
	m.CommitCalls++
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	return nil
}

func (m *MockCheckpoint) Rollback(ctx context.Context) error {
	m.RollbackCalls++
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}

var _ checkpoint.Checkpoint = (*MockCheckpoint)(nil)
