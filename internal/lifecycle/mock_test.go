package lifecycle

import (
	"context"
	"sync"
)

// callLog records lifecycle calls across several mock components.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// filter returns the component names of calls with the given verb.
func (l *callLog) filter(verb string) []string {
	var out []string
	for _, c := range l.get() {
		if len(c) > len(verb)+1 && c[:len(verb)+1] == verb+":" {
			out = append(out, c[len(verb)+1:])
		}
	}
	return out
}

// mockComponent is a test implementation of Component.
type mockComponent struct {
	name       string
	log        *callLog
	prepareErr error
	startErr   error
	stopErr    error
	// startFn replaces the default Start behaviour when set.
	startFn func(ctx context.Context) error
}

func newMock(name string, log *callLog) *mockComponent {
	return &mockComponent{name: name, log: log}
}

func (m *mockComponent) Prepare(ctx context.Context) error {
	m.log.add("prepare:" + m.name)
	return m.prepareErr
}

func (m *mockComponent) Start(ctx context.Context) error {
	m.log.add("start:" + m.name)
	if m.startFn != nil {
		return m.startFn(ctx)
	}
	return m.startErr
}

func (m *mockComponent) Stop(ctx context.Context) error {
	m.log.add("stop:" + m.name)
	return m.stopErr
}

// otherComponent has a distinct type for accessor tests.
type otherComponent struct {
	mockComponent
}

// mockObservability records Setup/Shutdown calls.
type mockObservability struct {
	log      *callLog
	setupErr error
}

func (m *mockObservability) Setup(ctx context.Context) error {
	m.log.add("setup:observability")
	return m.setupErr
}

func (m *mockObservability) Shutdown(ctx context.Context) error {
	m.log.add("shutdown:observability")
	return nil
}
