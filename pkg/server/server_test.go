package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittons/pkg/adapter/rest"
	"github.com/marmos91/dittons/pkg/gc"
	"github.com/marmos91/dittons/pkg/namespace"
	blockmemory "github.com/marmos91/dittons/pkg/store/block/memory"
	nodememory "github.com/marmos91/dittons/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter blocks in Serve until stopped, or fails with serveErr.
type fakeAdapter struct {
	protocol string
	port     int
	serveErr error

	engine  *namespace.Engine
	stopped atomic.Bool
	stop    chan struct{}
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stop: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stop:
		return nil
	}
}

func (f *fakeAdapter) SetEngine(e *namespace.Engine) { f.engine = e }

func (f *fakeAdapter) Stop(ctx context.Context) error {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.stop)
	}
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func newEngine(t *testing.T) (*namespace.Engine, *blockmemory.MemoryBlockStore) {
	t.Helper()
	blocks := blockmemory.NewMemoryBlockStore(blockmemory.MemoryBlockStoreConfig{})
	e, err := namespace.New(context.Background(), nodememory.NewMemoryNodeStore(), blocks)
	require.NoError(t, err)
	return e, blocks
}

func TestNew_NilEnginePanics(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}

func TestAddAdapter(t *testing.T) {
	e, _ := newEngine(t)
	s := New(e)

	a := newFakeAdapter("HTTP", 9870)
	require.NoError(t, s.AddAdapter(a))
	assert.Same(t, e, a.engine)

	err := s.AddAdapter(newFakeAdapter("HTTP", 9871))
	assert.ErrorContains(t, err, "already registered")

	err = s.AddAdapter(newFakeAdapter("OTHER", 9870))
	assert.ErrorContains(t, err, "port 9870 already in use")

	require.NoError(t, s.AddAdapter(newFakeAdapter("ZERO", 0)))
	assert.Len(t, s.Adapters(), 2)
}

func TestServe_NoAdapters(t *testing.T) {
	e, _ := newEngine(t)
	err := New(e).Serve(context.Background())
	assert.ErrorContains(t, err, "no adapters registered")
}

func TestServe_CancelStopsAdapters(t *testing.T) {
	e, _ := newEngine(t)
	s := New(e, WithStopTimeout(time.Second))

	a := newFakeAdapter("HTTP", 0)
	require.NoError(t, s.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.True(t, a.stopped.Load())

	assert.Error(t, s.Serve(context.Background()), "second Serve must fail")
	assert.Panics(t, func() { _ = s.AddAdapter(newFakeAdapter("LATE", 1)) })
}

func TestServe_AdapterFailure(t *testing.T) {
	e, _ := newEngine(t)
	s := New(e, WithStopTimeout(time.Second))

	healthy := newFakeAdapter("HTTP", 0)
	broken := newFakeAdapter("BROKEN", 0)
	broken.serveErr = errors.New("bind: address in use")
	require.NoError(t, s.AddAdapter(healthy))
	require.NoError(t, s.AddAdapter(broken))

	err := s.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROKEN adapter error")
	assert.True(t, healthy.stopped.Load())
}

func TestServe_RESTAdapterWithCollector(t *testing.T) {
	e, blocks := newEngine(t)

	collector, err := gc.NewCollector(e, blocks, gc.Config{Enabled: true, Interval: time.Hour}, nil)
	require.NoError(t, err)

	s := New(e, WithCollector(collector), WithStopTimeout(5*time.Second))
	a := rest.New(rest.RESTConfig{Enabled: true, Port: 0}, nil)
	require.NoError(t, s.AddAdapter(a))
	assert.Same(t, e, s.Engine())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx) }()

	require.Eventually(t, func() bool { return a.Port() != 0 }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", a.Port()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
