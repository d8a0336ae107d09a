// Package server provides application lifecycle management including
// graceful startup and shutdown with signal handling.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service represents a long-running component that can be started and stopped.
type Service interface {
	// Start runs the service and blocks until it is stopped or fails.
	Start() error
	// Stop gracefully stops the service, giving up when ctx is done.
	Stop(ctx context.Context) error
}

// FuncService adapts a start/stop function pair into the Service interface.
// A nil StartFn blocks until Stop is called.
type FuncService struct {
	StartFn func() error
	StopFn  func(ctx context.Context) error

	once     sync.Once
	stopOnce sync.Once
	done     chan struct{}
}

func (f *FuncService) init() {
	f.once.Do(func() { f.done = make(chan struct{}) })
}

// Start calls the underlying start function.
func (f *FuncService) Start() error {
	f.init()
	if f.StartFn == nil {
		<-f.done
		return nil
	}
	return f.StartFn()
}

// Stop calls the underlying stop function and releases a blocking Start.
func (f *FuncService) Stop(ctx context.Context) error {
	f.init()
	defer f.stopOnce.Do(func() { close(f.done) })
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}

// HTTPService serves an http.Server as a lifecycle service.
type HTTPService struct {
	srv    *http.Server
	logger *zap.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewHTTPService wraps srv.
//
// Precondition: srv.Addr is a listen address; logger must be non-nil.
func NewHTTPService(srv *http.Server, logger *zap.Logger) *HTTPService {
	return &HTTPService{srv: srv, logger: logger}
}

// Start listens on srv.Addr and serves until Stop.
//
// Postcondition: Returns nil after a graceful stop, or the listen/serve error.
func (h *HTTPService) Start() error {
	lis, err := net.Listen("tcp", h.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.srv.Addr, err)
	}
	h.mu.Lock()
	h.addr = lis.Addr()
	h.mu.Unlock()
	h.logger.Info("http server listening", zap.String("addr", lis.Addr().String()))

	if err := h.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address, or nil before Start has listened.
func (h *HTTPService) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

// Stop shuts the server down gracefully, closing it outright if ctx expires.
func (h *HTTPService) Stop(ctx context.Context) error {
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("graceful http shutdown incomplete, closing", zap.Error(err))
		return errors.Join(err, h.srv.Close())
	}
	return nil
}

// Lifecycle manages the startup and shutdown of multiple services.
// Services are started in order and stopped in reverse order.
type Lifecycle struct {
	logger          *zap.Logger
	shutdownTimeout time.Duration
	services        []namedService
	mu              sync.Mutex
}

type namedService struct {
	name    string
	service Service
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil; shutdownTimeout must be positive.
func NewLifecycle(logger *zap.Logger, shutdownTimeout time.Duration) *Lifecycle {
	return &Lifecycle{
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// Add registers a named service for lifecycle management.
// Services are started in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts all services and blocks until a termination signal (SIGINT or
// SIGTERM), ctx cancellation, or a service failure. Services are then stopped
// in reverse order, sharing one shutdown deadline.
//
// Postcondition: All services are stopped when this method returns; the
// returned error is the first service failure, if any.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	l.mu.Unlock()

	errCh := make(chan error, len(services))
	for _, ns := range services {
		go func() {
			l.logger.Info("starting service",
				zap.String("service", ns.name),
			)
			svcStart := time.Now()
			if err := ns.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
			}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case runErr = <-errCh:
		l.logger.Error("service error, shutting down",
			zap.Error(runErr),
		)
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	l.shutdown(services)

	l.logger.Info("shutdown complete",
		zap.Duration("total_uptime", time.Since(start)),
	)
	return runErr
}

func (l *Lifecycle) shutdown(services []namedService) {
	shutdownStart := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service",
			zap.String("service", ns.name),
		)
		if err := ns.service.Stop(ctx); err != nil {
			l.logger.Warn("service stop failed",
				zap.String("service", ns.name),
				zap.Error(err),
			)
			continue
		}
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped",
		zap.Duration("shutdown_elapsed", time.Since(shutdownStart)),
	)
}
