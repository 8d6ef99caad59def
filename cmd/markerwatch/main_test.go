package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LdDl/marker-tracker/internal/watch"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource emits events and then either fails or waits for cancellation
type fakeSource struct {
	events []watch.ImageEvent
	err    error
}

func (f *fakeSource) Run(ctx context.Context, out chan<- watch.ImageEvent) error {
	for _, ev := range f.events {
		select {
		case <-ctx.Done():
			return nil
		case out <- ev:
		}
	}
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

type countingSink struct {
	received atomic.Int32
	stopped  atomic.Bool
}

func (s *countingSink) Run(ctx context.Context, events <-chan watch.ImageEvent) {
	defer s.stopped.Store(true)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			s.received.Add(1)
		}
	}
}

func runMonitor(t *testing.T, ctx context.Context, units []cameraUnit) error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- monitor(ctx, units, zerolog.Nop())
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not return")
	}
	return nil
}

func TestMonitorStopsAllCamerasWhenWatcherFails(t *testing.T) {
	healthy := &countingSink{}
	failing := &countingSink{}
	units := []cameraUnit{
		{name: "camera1", source: &fakeSource{}, sink: healthy},
		{
			name:   "camera2",
			source: &fakeSource{events: []watch.ImageEvent{{Name: "img_0001.jpg"}}, err: errors.New("watch limit reached")},
			sink:   failing,
		},
	}

	err := runMonitor(t, context.Background(), units)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera2")
	assert.Contains(t, err.Error(), "watch limit reached")
	assert.True(t, healthy.stopped.Load())
	assert.True(t, failing.stopped.Load())
}

func TestMonitorStopsOnCancel(t *testing.T) {
	sink := &countingSink{}
	units := []cameraUnit{
		{name: "camera1", source: &fakeSource{}, sink: sink},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, runMonitor(t, ctx, units))
	assert.True(t, sink.stopped.Load())
}
