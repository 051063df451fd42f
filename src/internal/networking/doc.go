// Package networking reads and writes kernel network state over netlink.
//
// # Architecture
//
//   - KernelStateProvider: reads links, addresses, static routes and policy
//     rules into a state.NetworkState
//   - KernelApplier: applies a reconcile.Plan to the kernel
//   - IpRoute / IpRule: kernel route and rule wrappers with builders from
//     state entries
//
// Both sides go through the Netlink interface, which *netlink.Handle
// satisfies. Tests use an in-memory implementation.
//
// # Scope
//
// Only routes with the boot or static protocol are read or replaced.
// Connected routes and routes installed by DHCP or router advertisements
// are left to their owners. The three default policy rules are never
// reported and never touched.
//
// Physical interfaces cannot be created or removed. Deleting one detaches
// it from its controller, flushes its static addresses and brings it down.
// Open vSwitch types need an OVS database connection and are reported as
// not implemented.
//
// # Example Usage
//
//	nl, err := networking.NewNetlink()
//	if err != nil {
//	    return err
//	}
//	provider := networking.NewKernelStateProvider(nl, logger)
//	current, err := provider.CurrentState(ctx)
//	if err != nil {
//	    return err
//	}
//	plan, err := engine.Plan(ctx, desired, current)
//	if err != nil {
//	    return err
//	}
//	return networking.NewKernelApplier(nl, logger).ApplyPlan(ctx, plan)
package networking
