package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// The registry maps module IDs such as "gateway.http", "cron.scheduler" and
// "ledger.sqlite" to their ModuleInfo. Modules add themselves from init, so
// a binary only knows the modules it blank-imports.
var (
	registryMu sync.RWMutex
	registry   = make(map[ModuleID]ModuleInfo)
)

// RegisterModule records the module described by instance.ModuleInfo. It
// panics on an empty ID, a nil constructor or an ID already taken, which
// are programming errors in an init function.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, taken := registry[info.ID]; taken {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	registry[info.ID] = info
}

// GetModule looks up a registered module.
func GetModule(id string) (ModuleInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[ModuleID(id)]
	return info, ok
}

// GetModules lists every registered module by ID.
func GetModules() []ModuleInfo {
	return listModules(func(ModuleInfo) bool { return true })
}

// GetModulesByNamespace lists the modules below namespace: "ledger" yields
// "ledger.sqlite" but not a bare "ledger" module.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return listModules(func(info ModuleInfo) bool {
		return info.ID.Name() != "" && info.ID.Namespace() == namespace
	})
}

func listModules(keep func(ModuleInfo) bool) []ModuleInfo {
	registryMu.RLock()
	out := make([]ModuleInfo, 0, len(registry))
	for _, info := range registry {
		if keep(info) {
			out = append(out, info)
		}
	}
	registryMu.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// resetRegistry empties the registry between tests.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[ModuleID]ModuleInfo)
}
