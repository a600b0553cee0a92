// Package daemon wires the cdevd pipeline together: incoming device
// events run through the filter rules to decide forwarding, cgroup and
// auxiliary-state effects, then through the node rules to decide device
// node ownership and permissions. It owns rule loading and reload, the
// coldplug sysfs scan, and the per-event telemetry.
package daemon
