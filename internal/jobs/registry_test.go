package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catchphish/internal/storage"
)

func newRegistry(src *fakeSource, an *fakeAnalyzer) *Registry {
	return NewRegistry(MonitorDeps{Source: src, Analyzer: an}, time.Hour, time.Millisecond)
}

func TestRegistry_StartIsIdempotent(t *testing.T) {
	r := newRegistry(&fakeSource{}, &fakeAnalyzer{})
	defer r.Shutdown(context.Background())

	first, err := r.Start("paypal.com", time.Minute, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, first.Started)
	assert.False(t, first.AlreadyRunning)

	second, err := r.Start("https://PayPal.com/login", 5*time.Minute, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, second.Started)
	assert.True(t, second.AlreadyRunning)
	assert.Equal(t, "1m0s", second.Status.Interval, "existing task keeps its interval")
	assert.Equal(t, "alice@example.com", second.Status.Owner)

	assert.Len(t, r.List(), 1)
}

func TestRegistry_ConcurrentStartsYieldOneTask(t *testing.T) {
	src := &fakeSource{}
	r := newRegistry(src, &fakeAnalyzer{})
	defer r.Shutdown(context.Background())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := r.Start("paypal.com", time.Minute, "")
			if err == nil && resp.Started {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Len(t, r.List(), 1)
}

func TestRegistry_StartValidation(t *testing.T) {
	r := NewRegistry(MonitorDeps{Source: &fakeSource{}, Analyzer: &fakeAnalyzer{}}, time.Minute, 30*time.Second)
	defer r.Shutdown(context.Background())

	_, err := r.Start("not a domain", time.Minute, "")
	assert.Error(t, err)

	_, err = r.Start("paypal.com", time.Second, "")
	assert.ErrorIs(t, err, ErrInvalidInterval)

	resp, err := r.Start("paypal.com", 0, "")
	require.NoError(t, err)
	assert.Equal(t, "1m0s", resp.Status.Interval, "zero interval selects the default")
}

func TestRegistry_ParseInterval(t *testing.T) {
	r := NewRegistry(MonitorDeps{}, 5*time.Minute, time.Second)

	d, err := r.ParseInterval("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	d, err = r.ParseInterval("90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = r.ParseInterval("often")
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestRegistry_StopAndRestart(t *testing.T) {
	src := &fakeSource{domains: []string{"paypa1.com"}}
	an := &fakeAnalyzer{}
	r := newRegistry(src, an)
	defer r.Shutdown(context.Background())

	_, err := r.Start("paypal.com", time.Hour, "")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(an.reported()) == 1 }, 2*time.Second, 5*time.Millisecond)

	st, err := r.Stop(context.Background(), "paypal.com")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Reported)
	assert.Empty(t, r.List())

	_, err = r.Stop(context.Background(), "paypal.com")
	assert.ErrorIs(t, err, ErrMonitorNotFound)

	resp, err := r.Start("paypal.com", time.Hour, "")
	require.NoError(t, err)
	assert.True(t, resp.Started, "a stopped domain can be monitored again")

	// The new task has a fresh in-memory set, so the candidate is reported again.
	assert.Eventually(t, func() bool { return len(an.reported()) == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestRegistry_StartWhileStopping(t *testing.T) {
	an := &fakeAnalyzer{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	r := newRegistry(&fakeSource{domains: []string{"paypa1.com"}}, an)
	defer r.Shutdown(context.Background())

	_, err := r.Start("paypal.com", time.Hour, "")
	require.NoError(t, err)
	<-an.entered

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Stop(shortCtx, "paypal.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := r.Get("paypal.com")
	assert.False(t, ok, "a stopping monitor is not reported as running")
	assert.Empty(t, r.List())

	_, err = r.Start("paypal.com", time.Hour, "")
	assert.ErrorIs(t, err, ErrMonitorStopping, "the old task still owns the domain")

	close(an.block)
	assert.Eventually(t, func() bool {
		resp, err := r.Start("paypal.com", time.Hour, "")
		return err == nil && resp.Started
	}, 2*time.Second, 5*time.Millisecond, "the domain is free once the old task exits")
	assert.Len(t, r.List(), 1)
}

func TestRegistry_SharedReportedSetSurvivesRestart(t *testing.T) {
	src := &fakeSource{domains: []string{"paypa1.com"}}
	an := &fakeAnalyzer{}
	set := storage.NewMemoryReportedSet()
	r := NewRegistry(MonitorDeps{
		Source:      src,
		Analyzer:    an,
		ReportedSet: func(string) storage.ReportedSet { return set },
	}, time.Hour, time.Millisecond)
	defer r.Shutdown(context.Background())

	_, err := r.Start("paypal.com", time.Hour, "")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return set.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	_, err = r.Stop(context.Background(), "paypal.com")
	require.NoError(t, err)

	_, err = r.Start("paypal.com", time.Hour, "")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return src.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	_, err = r.Stop(context.Background(), "paypal.com")
	require.NoError(t, err)

	assert.Len(t, an.reported(), 1)
}

func TestRegistry_GetAndList(t *testing.T) {
	r := newRegistry(&fakeSource{}, &fakeAnalyzer{})
	defer r.Shutdown(context.Background())

	for _, d := range []string{"paypal.com", "amazon.com", "google.com"} {
		_, err := r.Start(d, time.Hour, "")
		require.NoError(t, err)
	}

	var domains []string
	for _, s := range r.List() {
		domains = append(domains, s.ProtectedDomain)
	}
	assert.Equal(t, []string{"amazon.com", "google.com", "paypal.com"}, domains)

	st, ok := r.Get("AMAZON.com")
	assert.True(t, ok)
	assert.Equal(t, "amazon.com", st.ProtectedDomain)

	_, ok = r.Get("example.org")
	assert.False(t, ok)
}

func TestRegistry_Shutdown(t *testing.T) {
	an := &fakeAnalyzer{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	r := newRegistry(&fakeSource{domains: []string{"paypa1.com"}}, an)

	_, err := r.Start("paypal.com", time.Hour, "")
	require.NoError(t, err)
	<-an.entered

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(r.Shutdown(shortCtx), context.DeadlineExceeded), "shutdown waits for the in-flight report")

	close(an.block)
	require.NoError(t, r.Shutdown(context.Background()))

	_, err = r.Start("amazon.com", time.Hour, "")
	assert.ErrorIs(t, err, ErrRegistryClosed)
}
