// Package cgroups applies device allow/deny rules to container control
// groups. Managers are registered by name; filter rules pick one with a
// CGROUP assignment and the daemon invokes it after the event decision.
package cgroups
