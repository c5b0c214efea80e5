package blackboard

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/3disturbed/BlackBoard/pkg/backend"
)

// mockBackend is an in-memory durable backend with failure injection,
// standing in for a remote document store in tests.
type mockBackend struct {
	mu   sync.Mutex
	docs map[string]map[string]any

	bulkCalls int
	bulks     [][]backend.Write
	pings     int

	failBulk bool
	failRead bool
	closed   bool
}

func newMockBackend() *mockBackend {
	return &mockBackend{docs: make(map[string]map[string]any)}
}

var errMockDown = errors.New("mock backend down")

func (m *mockBackend) Read(_ context.Context, section, key string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead {
		return nil, errMockDown
	}
	v, ok := m.docs[section][key]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return v, nil
}

func (m *mockBackend) UpsertOne(_ context.Context, section, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsert(section, key, value)
	return nil
}

func (m *mockBackend) DeleteOne(_ context.Context, section, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[section], key)
	if len(m.docs[section]) == 0 {
		delete(m.docs, section)
	}
	return nil
}

func (m *mockBackend) DeleteMany(_ context.Context, section string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, section)
	return nil
}

func (m *mockBackend) BulkUpsert(_ context.Context, writes []backend.Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkCalls++
	if m.failBulk {
		return errMockDown
	}
	cp := make([]backend.Write, len(writes))
	copy(cp, writes)
	m.bulks = append(m.bulks, cp)
	for _, w := range writes {
		m.upsert(w.Section, w.Key, w.Value)
	}
	return nil
}

func (m *mockBackend) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return nil
}

func (m *mockBackend) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockBackend) upsert(section, key string, value any) {
	sec, ok := m.docs[section]
	if !ok {
		sec = make(map[string]any)
		m.docs[section] = sec
	}
	sec[key] = value
}

func (m *mockBackend) setFailBulk(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failBulk = fail
}

func (m *mockBackend) stored(section, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.docs[section][key]
	return v, ok
}

func (m *mockBackend) bulkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bulkCalls
}

func (m *mockBackend) pingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

// stuckBackend blocks on bulk writes and close until the context expires,
// simulating an unreachable document store during shutdown.
type stuckBackend struct {
	*mockBackend
}

func (*stuckBackend) BulkUpsert(ctx context.Context, _ []backend.Write) error {
	<-ctx.Done()
	return ctx.Err()
}

func (*stuckBackend) Close(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
