package backend

import (
	"errors"
	"testing"
)

// stubBackend is a minimal Backend for registry tests.
type stubBackend struct{ name string }

func (b *stubBackend) Name() string                          { return b.name }
func (b *stubBackend) EnumerateAdapters() ([]Adapter, error) { return nil, nil }
func (b *stubBackend) SoftwareAdapter() (Adapter, error)     { return nil, ErrNoAdapter }
func (b *stubBackend) SupportsTearing() bool                 { return false }
func (b *stubBackend) Close()                                {}

// withRegistry swaps the registry contents for the duration of a test.
func withRegistry(t *testing.T, entries map[string]BackendFactory) {
	t.Helper()
	registryMu.Lock()
	saved := backends
	backends = entries
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
}

func stubFactory(name string) BackendFactory {
	return func() (Backend, error) { return &stubBackend{name: name}, nil }
}

func TestRegisterAndGet(t *testing.T) {
	withRegistry(t, map[string]BackendFactory{})

	Register("custom", stubFactory("custom"))
	if !IsRegistered("custom") {
		t.Fatal("IsRegistered(custom) = false after Register")
	}

	b, err := Get("custom")
	if err != nil {
		t.Fatalf("Get(custom) error = %v", err)
	}
	if b.Name() != "custom" {
		t.Errorf("Name() = %q, want %q", b.Name(), "custom")
	}

	Unregister("custom")
	if IsRegistered("custom") {
		t.Error("IsRegistered(custom) = true after Unregister")
	}
}

func TestGetUnknown(t *testing.T) {
	withRegistry(t, map[string]BackendFactory{})

	_, err := Get("missing")
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Get(missing) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestDefaultPriority(t *testing.T) {
	withRegistry(t, map[string]BackendFactory{
		"zzz":         stubFactory("zzz"),
		BackendSim:    stubFactory(BackendSim),
		BackendNative: stubFactory(BackendNative),
	})

	b, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if b.Name() != BackendNative {
		t.Errorf("Default() = %q, want %q", b.Name(), BackendNative)
	}
}

func TestDefaultSkipsFailingFactory(t *testing.T) {
	withRegistry(t, map[string]BackendFactory{
		BackendNative: func() (Backend, error) { return nil, ErrNoAdapter },
		BackendSim:    stubFactory(BackendSim),
	})

	b, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if b.Name() != BackendSim {
		t.Errorf("Default() = %q, want %q", b.Name(), BackendSim)
	}
}

func TestDefaultNoneAvailable(t *testing.T) {
	withRegistry(t, map[string]BackendFactory{
		BackendNative: func() (Backend, error) { return nil, ErrNoAdapter },
	})

	_, err := Default()
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Default() error = %v, want ErrBackendNotAvailable", err)
	}
	if !errors.Is(err, ErrNoAdapter) {
		t.Errorf("Default() error = %v, want wrapped ErrNoAdapter", err)
	}
}

func TestAvailableSorted(t *testing.T) {
	withRegistry(t, map[string]BackendFactory{
		"b": stubFactory("b"),
		"a": stubFactory("a"),
	})

	got := Available()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Available() = %v, want [a b]", got)
	}
}
