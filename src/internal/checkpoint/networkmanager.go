package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
)

const (
	nmDest      = "org.freedesktop.NetworkManager"
	nmPath      = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmInterface = "org.freedesktop.NetworkManager"
	nmDevice    = "org.freedesktop.NetworkManager.Device"

	nmCheckpointCreate        = nmInterface + ".CheckpointCreate"
	nmCheckpointDestroy       = nmInterface + ".CheckpointDestroy"
	nmCheckpointRollback      = nmInterface + ".CheckpointRollback"
	nmCheckpointAdjustTimeout = nmInterface + ".CheckpointAdjustRollbackTimeout"
	nmGetDevices              = nmInterface + ".GetDevices"
)

// NMCheckpointCreateFlags
const (
	nmCheckpointDestroyAll           uint32 = 0x01
	nmCheckpointDeleteNewConnections uint32 = 0x02
	nmCheckpointDisconnectNewDevices uint32 = 0x04
)

// NMDeviceState values between prepare and secondaries mean the device is
// still being activated.
const (
	nmDeviceStatePrepare     uint32 = 40
	nmDeviceStateSecondaries uint32 = 90
)

// nmRollbackOK is the per-device result of a successful rollback.
const nmRollbackOK uint32 = 0

// Bus is the part of *dbus.Conn the NetworkManager backend uses.
type Bus interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// NetworkManager creates checkpoints through the NetworkManager D-Bus API.
// It also reports devices that are still activating.
type NetworkManager struct {
	bus Bus
	log *log.Logger
}

// ConnectNetworkManager opens a private connection to the system bus.
func ConnectNetworkManager(logger *log.Logger) (*NetworkManager, func() error, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, nil, errors.NewBackendError("failed to connect to the system bus", err)
	}
	return NewNetworkManager(conn, logger), conn.Close, nil
}

// NewNetworkManager creates a checkpointer talking to NetworkManager over bus.
func NewNetworkManager(bus Bus, logger *log.Logger) *NetworkManager {
	if logger == nil {
		logger = log.Discard()
	}
	return &NetworkManager{bus: bus, log: logger}
}

func (n *NetworkManager) manager() dbus.BusObject {
	return n.bus.Object(nmDest, nmPath)
}

// Create takes a checkpoint of all devices. Connections and devices created
// after it are removed on rollback.
func (n *NetworkManager) Create(ctx context.Context, timeout time.Duration) (Checkpoint, error) {
	flags := nmCheckpointDestroyAll | nmCheckpointDeleteNewConnections | nmCheckpointDisconnectNewDevices

	var path dbus.ObjectPath
	call := n.manager().CallWithContext(ctx, nmCheckpointCreate, 0, []dbus.ObjectPath{}, seconds(timeout), flags)
	if err := storeCall(call, "create checkpoint", &path); err != nil {
		return nil, err
	}

	cp := &nmCheckpoint{
		nm:       n,
		path:     path,
		timeout:  timeout,
		deadline: time.Now().Add(timeout),
		log:      n.log.WithField("checkpoint", string(path)),
	}
	cp.log.Debugf("Created, rollback in %s", timeout)
	return cp, nil
}

// Pending returns the interfaces of devices that are still activating.
func (n *NetworkManager) Pending(ctx context.Context) ([]string, error) {
	var devices []dbus.ObjectPath
	call := n.manager().CallWithContext(ctx, nmGetDevices, 0)
	if err := storeCall(call, "list devices", &devices); err != nil {
		return nil, err
	}

	var pending []string
	for _, path := range devices {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.KindTimeout, "listing devices cancelled", err)
		}
		dev := n.bus.Object(nmDest, path)

		v, err := dev.GetProperty(nmDevice + ".State")
		if err != nil {
			return nil, errors.NewBackendError(fmt.Sprintf("failed to read state of %s", path), err)
		}
		st, ok := v.Value().(uint32)
		if !ok || st < nmDeviceStatePrepare || st > nmDeviceStateSecondaries {
			continue
		}

		name := string(path)
		if v, err := dev.GetProperty(nmDevice + ".Interface"); err == nil {
			if s, ok := v.Value().(string); ok && s != "" {
				name = s
			}
		}
		pending = append(pending, name)
	}
	return pending, nil
}

type nmCheckpoint struct {
	nm   *NetworkManager
	path dbus.ObjectPath
	log  *log.Logger

	mu       sync.Mutex
	timeout  time.Duration
	deadline time.Time
}

func (c *nmCheckpoint) ID() string { return string(c.path) }

func (c *nmCheckpoint) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

func (c *nmCheckpoint) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

func (c *nmCheckpoint) Extend(ctx context.Context, d time.Duration) error {
	call := c.nm.manager().CallWithContext(ctx, nmCheckpointAdjustTimeout, 0, c.path, seconds(d))
	if err := storeCall(call, "extend checkpoint"); err != nil {
		return err
	}
	c.mu.Lock()
	c.timeout = d
	c.deadline = time.Now().Add(d)
	c.mu.Unlock()
	c.log.Debugf("Rollback window extended to %s", d)
	return nil
}

func (c *nmCheckpoint) Commit(ctx context.Context) error {
	call := c.nm.manager().CallWithContext(ctx, nmCheckpointDestroy, 0, c.path)
	if err := storeCall(call, "destroy checkpoint"); err != nil {
		return err
	}
	c.log.Debugf("Committed")
	return nil
}

func (c *nmCheckpoint) Rollback(ctx context.Context) error {
	var results map[string]uint32
	call := c.nm.manager().CallWithContext(ctx, nmCheckpointRollback, 0, c.path)
	if err := storeCall(call, "roll back checkpoint", &results); err != nil {
		return err
	}

	var failed []string
	for dev, res := range results {
		if res != nmRollbackOK {
			failed = append(failed, dev)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return errors.NewBackendError("rollback failed", fmt.Errorf("devices: %s", strings.Join(failed, ", ")))
	}
	c.log.Infof("Rolled back %d device(s)", len(results))
	return nil
}

// storeCall turns a finished call into its results or a BackendError.
func storeCall(call *dbus.Call, what string, retvalues ...any) error {
	if call.Err != nil {
		if errors.Is(call.Err, context.DeadlineExceeded) || errors.Is(call.Err, context.Canceled) {
			return errors.Wrap(errors.KindTimeout, fmt.Sprintf("%s: timed out", what), call.Err)
		}
		return errors.NewBackendError(fmt.Sprintf("failed to %s", what), call.Err)
	}
	if len(retvalues) == 0 {
		return nil
	}
	if err := call.Store(retvalues...); err != nil {
		return errors.NewBackendError(fmt.Sprintf("unexpected reply to %s", what), err)
	}
	return nil
}

// seconds rounds d up to whole seconds, the unit NetworkManager takes.
func seconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32((d + time.Second - 1) / time.Second)
}
