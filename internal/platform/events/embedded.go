package events

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EmbeddedBroker runs an in-process JetStream server for single-node and
// development deployments.
type EmbeddedBroker struct {
	server    *server.Server
	nc        *nats.Conn
	Publisher *JetStreamPublisher
}

func StartEmbedded(ctx context.Context, dataDir string, logger zerolog.Logger) (*EmbeddedBroker, error) {
	opts := &server.Options{
		JetStream: true,
		StoreDir:  filepath.Join(dataDir, "nats-store"),
		Port:      -1,
		HTTPPort:  -1,
		NoSigs:    true,
	}
	if err := os.MkdirAll(opts.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating nats store dir: %w", err)
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connecting to embedded nats: %w", err)
	}
	pub, err := NewJetStreamPublisher(ctx, nc, logger)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, err
	}
	logger.Info().Str("client_url", ns.ClientURL()).Msg("embedded nats started")
	return &EmbeddedBroker{server: ns, nc: nc, Publisher: pub}, nil
}

func (b *EmbeddedBroker) ClientURL() string {
	return b.server.ClientURL()
}

func (b *EmbeddedBroker) Shutdown() {
	if b.nc != nil {
		b.nc.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
		b.server.WaitForShutdown()
	}
}
