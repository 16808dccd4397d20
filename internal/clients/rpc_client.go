package clients

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/hotdog/pkg/retrier"
)

const (
	methodRequestAccounts = "eth_requestAccounts"
	methodAccounts        = "eth_accounts"
	methodChainID         = "eth_chainId"

	codeMethodNotFound = -32601
)

// ErrChainMismatch is returned when the endpoint serves a different chain than configured.
var ErrChainMismatch = errors.New("rpc endpoint serves an unexpected chain")

// RPCClient is a wallet provider backed by a JSON-RPC endpoint, used when no
// browser is involved. Nodes that do not implement eth_requestAccounts are
// asked for eth_accounts instead.
type RPCClient struct {
	client  *rpc.Client
	chainID uint64
	logger  *zap.Logger
}

// DialRPC connects to url and reads its chain id. Connection failures are
// retried with backoff; a chain id different from expectChainID (when non-zero)
// is not.
func DialRPC(ctx context.Context, url string, expectChainID uint64, logger *zap.Logger) (*RPCClient, error) {
	r := retrier.New(
		retrier.WithMaxRetries(3),
		retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			logger.Warn("rpc dial failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)

	return retrier.DoWithData(ctx, r, func(ctx context.Context) (*RPCClient, error) {
		client, err := rpc.DialContext(ctx, url)
		if err != nil {
			return nil, errors.Wrapf(err, "dial %s", url)
		}

		var id hexutil.Uint64
		if err := client.CallContext(ctx, &id, methodChainID); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "read chain id")
		}

		if expectChainID != 0 && uint64(id) != expectChainID {
			client.Close()
			return nil, retrier.Permanent(errors.Wrapf(ErrChainMismatch, "want %d, got %d", expectChainID, uint64(id)))
		}

		logger.Info("rpc endpoint connected", zap.String("url", url), zap.Uint64("chain_id", uint64(id)))

		return &RPCClient{client: client, chainID: uint64(id), logger: logger}, nil
	})
}

// ChainID reports the chain id read at dial time.
func (c *RPCClient) ChainID() uint64 { return c.chainID }

// Request implements wallet.Provider.
func (c *RPCClient) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.client.CallContext(ctx, &result, method, params...)
	if err != nil && method == methodRequestAccounts && isMethodNotFound(err) {
		c.logger.Debug("eth_requestAccounts unsupported, using eth_accounts")
		err = c.client.CallContext(ctx, &result, methodAccounts, params...)
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	c.client.Close()
}

func isMethodNotFound(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeMethodNotFound
}
