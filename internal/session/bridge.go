package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/hotdog/internal/clients"
	"github.com/vadiminshakov/hotdog/internal/wallet"
)

const defaultAttachTimeout = 10 * time.Second

// BridgeLocator finds the wallet of a browser page: the page's bridge when it
// reported an injected wallet, nil when it reported none.
type BridgeLocator struct {
	attachTimeout time.Duration

	mu       sync.Mutex
	bridge   *clients.BridgeClient
	attached chan struct{}
}

// NewBridgeLocator returns a locator with no page attached. A page that has
// not attached within attachTimeout counts as a page without a wallet.
func NewBridgeLocator(attachTimeout time.Duration) *BridgeLocator {
	if attachTimeout <= 0 {
		attachTimeout = defaultAttachTimeout
	}
	return &BridgeLocator{
		attachTimeout: attachTimeout,
		attached:      make(chan struct{}),
	}
}

// Attach makes b the page's wallet, replacing an earlier bridge.
func (l *BridgeLocator) Attach(b *clients.BridgeClient) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bridge = b
	close(l.attached)
	l.attached = make(chan struct{})
}

// Detach forgets b if it is still the current bridge.
func (l *BridgeLocator) Detach(b *clients.BridgeClient) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bridge == b {
		l.bridge = nil
	}
}

// Attached reports whether a page bridge is present.
func (l *BridgeLocator) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bridge != nil
}

// Locate implements wallet.Locator. The page has attachTimeout to attach its
// bridge and say hello; a page that does neither in time has no wallet.
func (l *BridgeLocator) Locate(ctx context.Context) (wallet.Provider, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.attachTimeout)
	defer cancel()

	for {
		l.mu.Lock()
		b, wait := l.bridge, l.attached
		l.mu.Unlock()

		if b != nil {
			hasWallet, err := b.WaitHello(waitCtx)
			switch {
			case errors.Is(err, clients.ErrBridgeClosed):
				l.Detach(b)
				continue
			case err != nil:
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, nil
			case !hasWallet:
				return nil, nil
			}
			return b, nil
		}

		select {
		case <-wait:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, nil
		}
	}
}
