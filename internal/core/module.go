// Package core provides the module system batchexec's optional subsystems
// plug into: the admin gateway, the run ledger and the scheduler.
package core

// ModuleID is a namespaced module identifier such as "gateway.http".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	for i := range len(id) {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// Name returns the part of the ID after the first dot.
func (id ModuleID) Name() string {
	ns := id.Namespace()
	if len(ns) == len(id) {
		return ""
	}
	return string(id[len(ns)+1:])
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID ModuleID
	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is implemented by every module. Optional lifecycle hooks are
// declared in lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}
