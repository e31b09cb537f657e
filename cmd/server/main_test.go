package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeServer struct {
	closed chan struct{}
	err    error
}

func (s *fakeServer) Shutdown(context.Context) error {
	close(s.closed)
	return s.err
}

// blockingIngests reports drained only after the listener was closed.
type blockingIngests struct {
	closed <-chan struct{}
}

func (d blockingIngests) WaitForIngests(ctx context.Context) error {
	select {
	case <-d.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestGracefulShutdown_ClosesListenerBeforeDrain(t *testing.T) {
	srv := &fakeServer{closed: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := gracefulShutdown(ctx, srv, blockingIngests{closed: srv.closed}); err != nil {
		t.Fatalf("gracefulShutdown() error = %v", err)
	}
	if ctx.Err() != nil {
		t.Error("drain waited for the deadline; listener was not closed first")
	}
}

func TestGracefulShutdown_ReportsServerError(t *testing.T) {
	boom := errors.New("close listener")
	srv := &fakeServer{closed: make(chan struct{}), err: boom}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := gracefulShutdown(ctx, srv, blockingIngests{closed: srv.closed}); !errors.Is(err, boom) {
		t.Errorf("gracefulShutdown() error = %v, want %v", err, boom)
	}
}
