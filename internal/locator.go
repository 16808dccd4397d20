package internal

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vadiminshakov/hotdog/config"
	"github.com/vadiminshakov/hotdog/internal/clients"
	"github.com/vadiminshakov/hotdog/internal/wallet"
)

// terminalLocator is the wallet source of `hotdog connect`. A terminal has
// no injected wallet: with an rpc_url the node's unlocked accounts stand in
// for one, without it the host is reported as web-only.
type terminalLocator interface {
	wallet.Locator
	Close()
}

// newTerminalLocator is the single place that decides the terminal's wallet source.
func newTerminalLocator(cfg config.Config, logger *zap.Logger) terminalLocator {
	if cfg.RPCURL == "" {
		return webOnlyLocator{Locator: wallet.Static(wallet.Unavailable)}
	}
	return &rpcLocator{
		url:     cfg.RPCURL,
		chainID: cfg.ChainID,
		logger:  logger.With(zap.String("rpc_url", cfg.RPCURL)),
	}
}

type webOnlyLocator struct {
	wallet.Locator
}

func (webOnlyLocator) Close() {}

// rpcLocator dials the node on first use and keeps the connection.
type rpcLocator struct {
	url     string
	chainID uint64
	logger  *zap.Logger

	mu     sync.Mutex
	client *clients.RPCClient
}

func (l *rpcLocator) Locate(ctx context.Context) (wallet.Provider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}

	client, err := clients.DialRPC(ctx, l.url, l.chainID, l.logger)
	if err != nil {
		return nil, err
	}
	l.client = client
	return client, nil
}

func (l *rpcLocator) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		l.client.Close()
		l.client = nil
	}
}
