package mocks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockCheckpointer(t *testing.T) {
	m := NewMockCheckpointer()

	cp, err := m.Create(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cp.ID() != "mock-1" || cp.Timeout() != time.Minute {
		t.Errorf("Unexpected checkpoint %s/%s", cp.ID(), cp.Timeout())
	}
	if m.Last() != cp {
		t.Error("Expected the checkpoint to be recorded")
	}

	if err := cp.Extend(context.Background(), 2*time.Minute); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cp.Timeout() != 2*time.Minute || m.Last().ExtendCalls != 1 {
		t.Error("Expected extend to restart the window")
	}
}

func TestMockCheckpoint_CustomBehavior(t *testing.T) {
	wantErr := errors.New("gone")
	cp := NewMockCheckpoint("x", time.Minute)
	cp.ExtendFunc = func(context.Context, time.Duration) error { return wantErr }
	cp.RollbackFunc = func(context.Context) error { return wantErr }

	if err := cp.Extend(context.Background(), time.Hour); err != wantErr {
		t.Errorf("Expected custom error, got: %v", err)
	}
	if cp.Timeout() != time.Minute {
		t.Error("A failed extend must not change the window")
	}
	if err := cp.Rollback(context.Background()); err != wantErr {
		t.Errorf("Expected custom error, got: %v", err)
	}
	if err := cp.Commit(context.Background()); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if cp.RollbackCalls != 1 || cp.CommitCalls != 1 {
		t.Errorf("Unexpected call counts rollback=%d commit=%d", cp.RollbackCalls, cp.CommitCalls)
	}
}
