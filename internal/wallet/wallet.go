package wallet

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/hotdog/internal/domain"
)

const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodGetBalance      = "eth_getBalance"

	blockLatest = "latest"
)

var errUnexpectedAccounts = errors.New("unexpected response from wallet")

// Connect asks the provider for account access and returns the primary address.
// A nil provider means no wallet is installed and yields (nil, nil).
func Connect(ctx context.Context, p Provider) (*domain.Address, error) {
	if p == nil {
		return nil, nil
	}

	raw, err := p.Request(ctx, MethodRequestAccounts)
	if err != nil {
		return nil, requestFailed(MethodRequestAccounts, err)
	}

	if isNull(raw) {
		return nil, requestFailed(MethodRequestAccounts, errUnexpectedAccounts)
	}
	var accounts []json.RawMessage
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, requestFailed(MethodRequestAccounts, errUnexpectedAccounts)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccountsReturned
	}

	var first *string
	if err := json.Unmarshal(accounts[0], &first); err != nil || first == nil || *first == "" {
		return nil, ErrNoAccountsReturned
	}

	addr := domain.Address(*first)
	return &addr, nil
}

// FetchBalance reads the latest native balance of addr. It makes a single attempt.
func FetchBalance(ctx context.Context, p Provider, addr domain.Address) (domain.Balance, error) {
	if p == nil {
		return domain.Balance{}, ErrNoWallet
	}

	raw, err := p.Request(ctx, MethodGetBalance, addr.String(), blockLatest)
	if err != nil {
		return domain.Balance{}, requestFailed(MethodGetBalance, err)
	}

	var quantity string
	if err := json.Unmarshal(raw, &quantity); err != nil {
		return domain.Balance{}, ErrUnexpectedResponse
	}

	wei, err := domain.ParseWeiHex(quantity)
	switch {
	case errors.Is(err, domain.ErrNotHexQuantity):
		return domain.Balance{}, ErrUnexpectedResponse
	case err != nil:
		return domain.Balance{}, ErrParseFailed
	}

	return domain.NewBalance(wei), nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
