package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Config struct {
	URI          string
	Database     string
	Collection   string
	VectorIndex  string
	DialTimeout  time.Duration
	QueryTimeout time.Duration
	PingTimeout  time.Duration
}

// Pool owns the document-store client. The composition root creates exactly
// one and passes it by reference; nothing in this package holds global state.
type Pool struct {
	mu     sync.Mutex
	cfg    Config
	client *mongo.Client
	logger *slog.Logger
}

// Connect dials the document store and verifies the connection with a ping.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{cfg: cfg, logger: logger}
	client, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

func (p *Pool) dial(ctx context.Context) (*mongo.Client, error) {
	p.logger.Info("connecting to document store", "database", p.cfg.Database, "collection", p.cfg.Collection)

	dialCtx := ctx
	if p.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, p.cfg.DialTimeout)
		defer cancel()
	}

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(p.cfg.URI).SetAppName("invoicelens"))
	if err != nil {
		p.logger.Error("failed to connect to document store", "error", err)
		return nil, err
	}
	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		p.logger.Error("document store ping failed", "error", err)
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}

	p.logger.Info("successfully connected to document store")
	return client, nil
}

// Collection returns the invoices collection handle.
func (p *Pool) Collection() *mongo.Collection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client.Database(p.cfg.Database).Collection(p.cfg.Collection)
}

// VectorIndex returns the name of the ANN index over summary embeddings.
func (p *Pool) VectorIndex() string {
	return p.cfg.VectorIndex
}

// QueryTimeout returns the per-operation deadline repositories should apply.
func (p *Pool) QueryTimeout() time.Duration {
	return p.cfg.QueryTimeout
}

// HealthCheck pings the document store to catch connection issues early.
func (p *Pool) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	p.logger.Debug("pinging document store")
	return client.Ping(ctx, readpref.Primary())
}

// Live probes the connection and transparently re-establishes it once when
// the ping fails.
func (p *Pool) Live(ctx context.Context) error {
	if err := p.HealthCheck(ctx, p.cfg.PingTimeout); err == nil {
		return nil
	}

	p.logger.Warn("document store ping failed; reconnecting")
	client, err := p.dial(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.client
	p.client = client
	p.mu.Unlock()

	if old != nil {
		_ = old.Disconnect(ctx)
	}
	p.logger.Info("document store connection re-established")
	return nil
}

// Close closes the document store connection gracefully.
func (p *Pool) Close(ctx context.Context) {
	p.logger.Info("closing document store connection")
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client != nil {
		if err := client.Disconnect(ctx); err != nil {
			p.logger.Error("failed to close document store connection", "error", err)
		}
	}
	p.logger.Info("document store connection closed")
}
