package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"sentinel/internal/api"
	"sentinel/internal/checks"
	"sentinel/internal/clock"
	"sentinel/internal/config"
	"sentinel/internal/ingest"
	"sentinel/internal/locks"
	"sentinel/internal/logging"
	"sentinel/internal/maintenance"
	"sentinel/internal/metrics"
	"sentinel/internal/notify"
	"sentinel/internal/notifyqueue"
	"sentinel/internal/report"
	"sentinel/internal/router"
	"sentinel/internal/state"
	"sentinel/internal/templatefmt"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable monitoring service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	redisCli  *redis.Client
	history   state.Store
	manager   *Manager
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	queueWork interface{ Close() error }
	producer  notifyqueue.Producer
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.Source, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	service := &Service{cfg: cfg, logger: logger, closeLog: closeLog, clock: clk}

	historyStore, windowStore, checkStore, err := service.buildStores()
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.history = historyStore

	table := locks.NewTable()
	registry := checks.NewRegistry(checkStore)
	tracker := maintenance.NewTracker(windowStore, table)
	reports := report.NewEngine(historyStore, tracker, clk)

	renderer, err := templatefmt.NewRenderer(cfg.Notify.Templates)
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	dispatcher := notify.NewDispatcher(cfg.Notify, renderer, logger)

	contacts, err := cfg.ToContacts()
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	producer, worker, err := service.buildQueue()
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.producer = producer
	service.queueWork = worker

	rtr := router.New(contacts, tracker, producer, clk, cfg.Notify.AckDurationSec, logger)
	service.manager = NewManager(logger, clk, table, registry, historyStore, tracker,
		reports, rtr, dispatcher, cfg.Notify.AckDurationSec)

	service.buildHTTPServer()
	if err := service.buildNATSSubscriber(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	return service, nil
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.Ingest.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	if s.queueWork != nil {
		if err := s.queueWork.Close(); err != nil {
			s.logger.Error("queue worker close failed", "error", err.Error())
			markErr(fmt.Errorf("queue worker close: %w", err))
		}
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.logger.Error("queue producer close failed", "error", err.Error())
			markErr(fmt.Errorf("queue producer close: %w", err))
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Error("history store close failed", "error", err.Error())
			markErr(fmt.Errorf("history store close: %w", err))
		}
	}
	if s.redisCli != nil {
		if err := s.redisCli.Close(); err != nil {
			s.logger.Error("redis close failed", "error", err.Error())
			markErr(fmt.Errorf("redis close: %w", err))
		}
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.queueWork != nil {
		_ = s.queueWork.Close()
		s.queueWork = nil
	}
	if s.producer != nil {
		_ = s.producer.Close()
		s.producer = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.redisCli != nil {
		_ = s.redisCli.Close()
		s.redisCli = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires report ingest, control-plane, and health endpoints.
// Params: none.
// Returns: none.
func (s *Service) buildHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Ingest.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Ingest.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	mux.Handle(s.cfg.Ingest.HTTP.MetricsPath, metrics.Handler())

	if s.cfg.Ingest.HTTP.Enabled {
		handler := ingest.NewHTTPHandler(s.manager, s.cfg.Ingest.HTTP.MaxBodyBytes)
		mux.Handle(s.cfg.Ingest.HTTP.StatePath, handler)
		batchPath := strings.TrimSuffix(s.cfg.Ingest.HTTP.StatePath, "/") + "/batch"
		mux.Handle(batchPath, handler)
	}

	control := api.NewHandler(s.manager, s.clock, s.logger)
	mux.Handle("/checks/", control)
	mux.Handle("/reports/", control)

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Ingest.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildNATSSubscriber starts NATS report ingest in cluster mode.
// Params: none.
// Returns: initialization error.
func (s *Service) buildNATSSubscriber() error {
	if s.singleMode() || !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.Ingest.NATS, s.manager, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

// buildQueue creates the notification queue for the configured mode.
// Single mode runs an in-process queue; cluster mode runs the JetStream
// producer/worker pair. The handler closure resolves the manager lazily
// because the router needs the producer before the manager exists.
// Params: none.
// Returns: producer and worker handles.
func (s *Service) buildQueue() (notifyqueue.Producer, interface{ Close() error }, error) {
	handler := func(ctx context.Context, job notifyqueue.Job) error {
		return s.manager.ProcessQueuedNotification(ctx, job)
	}
	if s.singleMode() {
		retryDelay := time.Duration(s.cfg.Queue.NackDelayMS) * time.Millisecond
		queue := notifyqueue.NewMemoryQueue(s.cfg.Queue.Workers, s.cfg.Queue.MaxDeliver, retryDelay, s.logger, handler)
		return queue, queue, nil
	}
	producer, err := notifyqueue.NewNATSProducer(s.cfg.Queue)
	if err != nil {
		return nil, nil, err
	}
	worker, err := notifyqueue.NewNATSWorker(s.cfg.Queue, s.logger, handler)
	if err != nil {
		_ = producer.Close()
		return nil, nil, err
	}
	return producer, worker, nil
}

// buildStores creates the history, window, and check stores for the backend.
// Params: none.
// Returns: store triple or backend connection error.
func (s *Service) buildStores() (state.Store, maintenance.Store, checks.Store, error) {
	if s.cfg.Store.Backend == config.StoreBackendMemory {
		return state.NewMemoryStore(), maintenance.NewMemoryStore(), checks.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Store.Redis.Addr,
		DB:       s.cfg.Store.Redis.DB,
		Password: s.cfg.Store.Redis.Password,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("redis ping %s: %w", s.cfg.Store.Redis.Addr, err)
	}
	s.redisCli = client
	prefix := s.cfg.Store.Redis.KeyPrefix
	return state.NewRedisStore(client, prefix),
		maintenance.NewRedisStore(client, prefix),
		checks.NewRedisStore(client, prefix), nil
}

func (s *Service) singleMode() bool {
	return s.cfg.Service.Mode == config.ServiceModeSingle
}
