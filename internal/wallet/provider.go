// Package wallet talks to an injected wallet provider: it requests account
// access and reads the native balance of the primary account.
package wallet

import (
	"context"
	"encoding/json"
)

// Provider is the request surface of an injected wallet, the Go shape of
// `provider.request({method, params})`. The result is the raw JSON value the
// request resolved to.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// Locator finds the provider available to the current host.
// It returns (nil, nil) when the host supports wallets but none is present
// and ErrUnsupportedHost when the host cannot reach a wallet at all.
type Locator interface {
	Locate(ctx context.Context) (Provider, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Provider, error)

// Locate implements Locator.
func (f LocatorFunc) Locate(ctx context.Context) (Provider, error) { return f(ctx) }

type unavailable struct{}

// Unavailable is the provider of hosts with no wallet capability.
var Unavailable Provider = unavailable{}

func (unavailable) Request(context.Context, string, ...any) (json.RawMessage, error) {
	return nil, ErrUnsupportedHost
}

// Static returns a locator that always yields p. A nil p means "no wallet",
// Unavailable means the host is unsupported.
func Static(p Provider) Locator {
	return LocatorFunc(func(context.Context) (Provider, error) {
		if p == Unavailable {
			return nil, ErrUnsupportedHost
		}
		return p, nil
	})
}
