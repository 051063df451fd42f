package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// expiryRollbackTimeout bounds a rollback started by an expired checkpoint.
const expiryRollbackTimeout = 2 * time.Minute

// Memory creates checkpoints that live in process memory.
//
// Creating one snapshots the current state. Rolling back plans the snapshot
// as the desired state against the state found at that moment, with every
// interface, route and rule that appeared since marked absent, and applies
// that plan.
type Memory struct {
	reader  StateReader
	applier PlanApplier
	planner Planner
	log     *log.Logger
	seq     atomic.Uint64
}

// NewMemory creates an in-memory checkpointer.
func NewMemory(reader StateReader, applier PlanApplier, planner Planner, logger *log.Logger) *Memory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Memory{reader: reader, applier: applier, planner: planner, log: logger}
}

// Create snapshots the current state. A timeout of zero disables automatic
// rollback.
func (m *Memory) Create(ctx context.Context, timeout time.Duration) (Checkpoint, error) {
	snapshot, err := m.reader.CurrentState(ctx)
	if err != nil {
		return nil, err
	}

	cp := &memoryCheckpoint{
		m:        m,
		id:       fmt.Sprintf("memory-%d", m.seq.Add(1)),
		snapshot: snapshot,
	}
	cp.log = m.log.WithField("checkpoint", cp.id)
	cp.arm(timeout)
	cp.log.Debugf("Created with %d interface(s), rollback in %s", snapshot.Interfaces.Len(), timeout)
	return cp, nil
}

type memoryCheckpoint struct {
	m        *Memory
	id       string
	snapshot *state.NetworkState
	log      *log.Logger

	mu       sync.Mutex
	timeout  time.Duration
	deadline time.Time
	timer    *time.Timer
	done     bool
	expired  bool
}

func (c *memoryCheckpoint) ID() string { return c.id }

func (c *memoryCheckpoint) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

func (c *memoryCheckpoint) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// arm starts a new rollback window. The caller holds mu or owns c exclusively.
func (c *memoryCheckpoint) arm(timeout time.Duration) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timeout = timeout
	c.deadline = time.Now().Add(timeout)
	if timeout > 0 {
		c.timer = time.AfterFunc(timeout, c.expire)
	}
}

func (c *memoryCheckpoint) Extend(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.finishedErr(); err != nil {
		return err
	}
	c.arm(d)
	c.log.Debugf("Rollback window extended to %s", d)
	return nil
}

func (c *memoryCheckpoint) Commit(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.finishedErr(); err != nil {
		return err
	}
	c.finish()
	c.log.Debugf("Committed")
	return nil
}

// Rollback restores the snapshot. Rolling back a checkpoint that already
// expired is a no-op, since the expiry rolled it back.
func (c *memoryCheckpoint) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return nil
	}
	if err := c.finishedErr(); err != nil {
		return err
	}
	c.finish()
	return c.restore(ctx)
}

func (c *memoryCheckpoint) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.finish()
	c.expired = true
	c.log.Warnf("Rollback timeout reached, restoring the checkpoint")

	ctx, cancel := context.WithTimeout(context.Background(), expiryRollbackTimeout)
	defer cancel()
	if err := c.restore(ctx); err != nil {
		c.log.Errorf("Automatic rollback failed: %v", err)
	}
}

func (c *memoryCheckpoint) finish() {
	c.done = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *memoryCheckpoint) finishedErr() error {
	switch {
	case c.expired:
		return errors.NewTimeout("checkpoint %s expired and was rolled back", c.id)
	case c.done:
		return errors.NewInvalidArgument("checkpoint %s is already finished", c.id)
	}
	return nil
}

func (c *memoryCheckpoint) restore(ctx context.Context) error {
	current, err := c.m.reader.CurrentState(ctx)
	if err != nil {
		return err
	}
	plan, err := c.m.planner.Plan(ctx, RestoreTarget(c.snapshot, current), current)
	if err != nil {
		return err
	}
	if plan.Empty() {
		c.log.Infof("Nothing to roll back")
		return nil
	}
	c.log.Infof("Rolling back: %s", plan.Summary())
	return c.m.applier.ApplyPlan(ctx, plan)
}

// RestoreTarget returns the desired state that turns current back into
// snapshot: the snapshot itself plus absent markers for interfaces that did
// not exist at snapshot time. The snapshot's routes become the full route list
// of every interface either side has routes on. Rules that appeared since are
// marked absent. Rules without ip-from and ip-to cannot be expressed in a
// desired state and are left as they are.
func RestoreTarget(snapshot, current *state.NetworkState) *state.NetworkState {
	target := snapshot.Clone()

	created := map[string]bool{}
	for _, iface := range current.Interfaces.List() {
		b := iface.Base()
		if snapshot.Interfaces.Kernel(b.Name) != nil {
			continue
		}
		gone := state.NewInterface(b.Name, b.Type)
		gone.Base().State = state.InterfaceStateAbsent
		target.Interfaces.Push(gone)
		created[b.Name] = true
	}

	var routes []state.RouteEntry
	seenIface := map[string]bool{}
	for _, list := range [][]state.RouteEntry{snapshot.Routes.Config, current.Routes.Config} {
		for _, r := range list {
			name := r.Iface()
			if name == "" || seenIface[name] || created[name] {
				continue
			}
			seenIface[name] = true
			routes = append(routes, state.RouteEntry{State: state.EntryStateAbsent, NextHopIface: state.Ptr(name)})
		}
	}
	target.Routes.Config = append(routes, snapshot.Routes.Config...)

	var rules []state.RouteRuleEntry
	for _, r := range current.Rules.Config {
		if r.IPFrom == nil && r.IPTo == nil {
			continue
		}
		if !containsRule(snapshot.Rules.Config, r) {
			r.State = state.EntryStateAbsent
			rules = append(rules, r)
		}
	}
	for _, r := range snapshot.Rules.Config {
		if r.IPFrom != nil || r.IPTo != nil {
			rules = append(rules, r)
		}
	}
	target.Rules.Config = rules

	return target
}

func containsRule(list []state.RouteRuleEntry, r state.RouteRuleEntry) bool {
	for _, c := range list {
		if c.Matches(r) && r.Matches(c) {
			return true
		}
	}
	return false
}
