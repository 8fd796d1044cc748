package logger

import (
	"slices"
	"sync"
)

// DefaultComponents are the component loggers dockerkit packages ask for.
// RegisterDefaults seeds these when called without names.
var DefaultComponents = []string{"process", "docker", "config", "component", "cli"}

var (
	namedMu sync.RWMutex
	named   = map[string]*Logger{}
)

// Register stores l under name. A nil l removes the entry.
func Register(name string, l *Logger) {
	namedMu.Lock()
	defer namedMu.Unlock()
	if l == nil {
		delete(named, name)
		return
	}
	named[name] = l
}

// Get returns the logger registered under name. Unregistered names get the
// global logger tagged with name as its component, so packages can call Get
// before Init without losing output.
func Get(name string) *Logger {
	namedMu.RLock()
	l, ok := named[name]
	namedMu.RUnlock()
	if ok {
		return l
	}
	return GetGlobalLogger().WithComponent(name)
}

// RegisterDefaults derives a component logger from the global logger for
// every name, or for DefaultComponents when none are given. Call it after
// Init so the registered loggers carry the configured level and format.
func RegisterDefaults(names ...string) {
	if len(names) == 0 {
		names = DefaultComponents
	}
	global := GetGlobalLogger()
	for _, name := range names {
		Register(name, global.WithComponent(name))
	}
}

// Registered lists the registered names in sorted order.
func Registered() []string {
	namedMu.RLock()
	defer namedMu.RUnlock()
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
