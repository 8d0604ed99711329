package commands

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	startErr error
	stopped  chan struct{}
	shutdown atomic.Int32
}

func newFakeServer(startErr error) *fakeServer {
	return &fakeServer{startErr: startErr, stopped: make(chan struct{})}
}

func (s *fakeServer) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	<-s.stopped
	return nil
}

func (s *fakeServer) Shutdown(context.Context) error {
	if s.shutdown.Add(1) == 1 && s.startErr == nil {
		close(s.stopped)
	}
	return nil
}

func TestServe(t *testing.T) {
	t.Run("ContextCancelled", func(t *testing.T) {
		api, metrics := newFakeServer(nil), newFakeServer(nil)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- serve(ctx, discardLogger(), api, metrics) }()
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not return")
		}
		assert.Equal(t, int32(1), api.shutdown.Load())
		assert.Equal(t, int32(1), metrics.shutdown.Load())
	})

	t.Run("ServerFailureStopsTheOthers", func(t *testing.T) {
		api, metrics := newFakeServer(nil), newFakeServer(errors.New("address already in use"))

		err := serve(context.Background(), discardLogger(), api, metrics)
		assert.ErrorContains(t, err, "address already in use")
		assert.Equal(t, int32(1), api.shutdown.Load())
	})
}
