package blackboard

import "sync"

// cacheTier is the in-memory tier of the store. Two implementations exist:
// sectionMap (unbounded, used when no durable backend is configured) and
// boundedCache (LRU + TTL, used when one is).
type cacheTier interface {
	get(section, key string) (any, bool)
	set(section, key string, value any)
	delete(section, key string)
	deleteSection(section string)

	// forEach visits every cached key of a section.
	forEach(section string, fn func(key string, value any))

	// dump returns a consistent full copy of the tier's contents,
	// suitable for snapshotting.
	dump() map[string]map[string]any

	len() int
}

// sectionMap is the unbounded tier: a plain section→key→value mapping.
// No eviction, no expiry.
type sectionMap struct {
	mu       sync.RWMutex
	sections map[string]map[string]any
}

func newSectionMap() *sectionMap {
	return &sectionMap{sections: make(map[string]map[string]any)}
}

func (m *sectionMap) get(section, key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.sections[section][key]
	return v, ok
}

func (m *sectionMap) set(section, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sec, ok := m.sections[section]
	if !ok {
		sec = make(map[string]any)
		m.sections[section] = sec
	}
	sec[key] = value
}

func (m *sectionMap) delete(section, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sec, ok := m.sections[section]
	if !ok {
		return
	}
	delete(sec, key)
	// An empty section is removed, never retained.
	if len(sec) == 0 {
		delete(m.sections, section)
	}
}

func (m *sectionMap) deleteSection(section string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sections, section)
}

func (m *sectionMap) forEach(section string, fn func(key string, value any)) {
	m.mu.RLock()
	// Copy the section so fn can mutate the tier without deadlocking.
	sec := make(map[string]any, len(m.sections[section]))
	for k, v := range m.sections[section] {
		sec[k] = v
	}
	m.mu.RUnlock()

	for k, v := range sec {
		fn(k, v)
	}
}

func (m *sectionMap) dump() map[string]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]any, len(m.sections))
	for name, sec := range m.sections {
		cp := make(map[string]any, len(sec))
		for k, v := range sec {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}

func (m *sectionMap) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sec := range m.sections {
		n += len(sec)
	}
	return n
}
