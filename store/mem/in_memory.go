package mem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warriorguo/graphflow/store"
)

var (
	_ store.Store = &memStore{}
)

const sep = "|"

// NewMemStore keeps records in process memory; they are gone with the
// process.
func NewMemStore() store.Store {
	return NewMemStoreWithErrHandler(defaultNoErr)
}

// NewMemStoreWithErrHandler returns a store whose every call returns the
// result of errHandler, for injecting store failures in tests.
func NewMemStoreWithErrHandler(errHandler func() error) store.Store {
	return &memStore{
		prefixes:       make(map[string]map[string][]byte),
		mockErrHandler: errHandler,
	}
}

func defaultNoErr() error {
	return nil
}

type memStore struct {
	mu sync.RWMutex

	mockErrHandler func() error

	prefixes map[string]map[string][]byte
}

func (m *memStore) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefixes := make([]string, 0, len(m.prefixes))
	for prefix := range m.prefixes {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	var sb strings.Builder
	sb.WriteString("\n----------\n")
	for _, prefix := range prefixes {
		for _, key := range sortedKeys(m.prefixes[prefix]) {
			sb.WriteString(fmt.Sprintf("%s%s%s: %s\n", prefix, sep, key, string(m.prefixes[prefix][key])))
		}
	}
	sb.WriteString("----------\n")
	return sb.String()
}

func (m *memStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value := m.prefixes[prefix][key]
	if value == nil {
		return nil, m.mockErrHandler()
	}
	return append([]byte(nil), value...), m.mockErrHandler()
}

func (m *memStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, exists := m.prefixes[prefix]
	if !exists {
		keys = make(map[string][]byte)
		m.prefixes[prefix] = keys
	}
	keys[key] = append([]byte(nil), value...)
	return m.mockErrHandler()
}

func (m *memStore) Remove(ctx context.Context, prefix, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keys, exists := m.prefixes[prefix]; exists {
		delete(keys, key)
		if len(keys) == 0 {
			delete(m.prefixes, prefix)
		}
	}
	return m.mockErrHandler()
}

func (m *memStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	m.mu.RLock()
	matchedKeys := sortedKeys(m.prefixes[prefix])
	m.mu.RUnlock()

	for _, key := range matchedKeys {
		if !iterator(key) {
			break
		}
	}
	return m.mockErrHandler()
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
