package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vietddude/relay/internal/core/config"
	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/delivery"
	"github.com/vietddude/relay/internal/dispatch"
	redisclient "github.com/vietddude/relay/internal/infra/redis"
	"github.com/vietddude/relay/internal/ingest"
)

// Config holds the application configuration.
type Config struct {
	Port     int
	Upstream config.UpstreamConfig
	Dispatch config.DispatchConfig
	Redis    redisclient.Config
}

// Relay is the main application struct: it owns the transport, the
// dispatch engine, the ingest server and the optional dead-letter journal.
type Relay struct {
	cfg         Config
	transport   *delivery.HTTPTransport
	dispatcher  *dispatch.Dispatcher
	ingest      *ingest.Server
	redisClient *redisclient.Client
	log         *slog.Logger
}

// NewRelay creates a new Relay instance with all dependencies initialized.
func NewRelay(cfg Config) (*Relay, error) {
	if cfg.Upstream.URL == "" {
		return nil, fmt.Errorf("upstream URL is required")
	}

	timeout := cfg.Upstream.Timeout.Std()
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	transport := delivery.NewHTTPTransport(cfg.Upstream.URL, cfg.Upstream.Token, timeout)

	dcfg := dispatch.DefaultConfig()
	if cfg.Dispatch.MaxBatchSize > 0 {
		dcfg.MaxBatchSize = cfg.Dispatch.MaxBatchSize
	}
	if cfg.Dispatch.MaxRetries > 0 {
		dcfg.MaxRetries = cfg.Dispatch.MaxRetries
	}
	if cfg.Dispatch.InitialRetryDelay > 0 {
		dcfg.InitialRetryDelay = cfg.Dispatch.InitialRetryDelay.Std()
	}
	if cfg.Dispatch.RetryPollInterval > 0 {
		dcfg.RetryPollInterval = cfg.Dispatch.RetryPollInterval.Std()
	}
	if cfg.Dispatch.DispatchStopTimeout > 0 {
		dcfg.DispatchStopTimeout = cfg.Dispatch.DispatchStopTimeout.Std()
	}
	if cfg.Dispatch.RetryStopTimeout > 0 {
		dcfg.RetryStopTimeout = cfg.Dispatch.RetryStopTimeout.Std()
	}

	dispatcher := dispatch.New(dcfg, transport)
	dispatcher.SetErrorListener(func(message string) {
		slog.Warn("upstream rejected request", "error", message)
	})

	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, dead-letter journal disabled", "error", err)
		} else {
			dispatcher.SetDeadLetter(redisclient.NewDeadLetterRepo(redisClient, 24*time.Hour))
			slog.Info("Dead-letter journal enabled")
		}
	}

	return &Relay{
		cfg:         cfg,
		transport:   transport,
		dispatcher:  dispatcher,
		ingest:      ingest.NewServer(dispatcher, cfg.Port),
		redisClient: redisClient,
		log:         slog.Default(),
	}, nil
}

// Start starts the ingest server. The dispatch and retry workers are
// spawned lazily on first demand.
func (r *Relay) Start(ctx context.Context) error {
	go func() {
		if err := r.ingest.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("Ingest server failed", "error", err)
		}
	}()
	r.log.Info("Relay started", "upstream", r.cfg.Upstream.URL)
	return nil
}

// Stop drains the relay: the ingest server stops accepting new calls,
// then the engine is given its bounded waits to flush in-flight work.
func (r *Relay) Stop(ctx context.Context, immediate bool) error {
	r.log.Info("Stopping Relay...", "immediate", immediate)

	if err := r.ingest.Stop(ctx); err != nil {
		r.log.Warn("Failed to stop ingest server", "error", err)
	}

	r.dispatcher.Stop(immediate)

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.Warn("Failed to close Redis", "error", err)
		}
	}

	return r.transport.Close()
}

// Enqueue submits a request directly, bypassing the HTTP ingress. Useful
// when embedding the relay in another process.
func (r *Relay) Enqueue(endpoint domain.Endpoint, payload domain.Payload) {
	r.dispatcher.Enqueue(domain.NewRequest(endpoint, payload))
}

// IngestAddr returns the ingest server's bound address, or nil before
// Start.
func (r *Relay) IngestAddr() net.Addr {
	return r.ingest.Addr()
}
