package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startBridge serves one BridgeClient and returns it together with the page side of the socket.
func startBridge(t *testing.T) (*BridgeClient, *websocket.Conn) {
	t.Helper()

	clients := make(chan *BridgeClient, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewBridgeClient(conn, zap.NewNop())
		clients <- client
		_ = client.Serve(context.Background())
	}))
	t.Cleanup(srv.Close)

	page, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { page.Close() })

	select {
	case client := <-clients:
		t.Cleanup(client.Close)
		return client, page
	case <-time.After(5 * time.Second):
		t.Fatal("bridge was not established")
		return nil, nil
	}
}

func TestBridgeClient_HelloAndRoundTrip(t *testing.T) {
	client, page := startBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, page.WriteJSON(map[string]any{"type": "hello", "wallet": true}))
	hasWallet, err := client.WaitHello(ctx)
	require.NoError(t, err)
	assert.True(t, hasWallet)

	// page answers exactly one request
	go func() {
		var msg bridgeRequest
		if err := page.ReadJSON(&msg); err != nil {
			return
		}
		assert.Equal(t, "request", msg.Type)
		assert.Equal(t, "eth_getBalance", msg.Method)
		assert.Equal(t, []any{"0xabc", "latest"}, msg.Params)
		_ = page.WriteJSON(map[string]any{"type": "response", "id": msg.ID, "result": "0x0"})
	}()

	result, err := client.Request(ctx, "eth_getBalance", "0xabc", "latest")
	require.NoError(t, err)
	assert.JSONEq(t, `"0x0"`, string(result))
}

func TestBridgeClient_EmptyParamsSentAsArray(t *testing.T) {
	client, page := startBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sent := make(chan map[string]json.RawMessage, 1)
	go func() {
		_, raw, err := page.ReadMessage()
		if err != nil {
			return
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return
		}
		sent <- fields
		var id uint64
		_ = json.Unmarshal(fields["id"], &id)
		_ = page.WriteJSON(map[string]any{"type": "response", "id": id, "result": []string{"0xabc"}})
	}()

	result, err := client.Request(ctx, "eth_requestAccounts")
	require.NoError(t, err)
	assert.JSONEq(t, `["0xabc"]`, string(result))

	fields := <-sent
	require.Contains(t, fields, "params")
	assert.JSONEq(t, `[]`, string(fields["params"]))
	assert.JSONEq(t, `"eth_requestAccounts"`, string(fields["method"]))
	assert.JSONEq(t, `"request"`, string(fields["type"]))
}

func TestBridgeClient_WalletError(t *testing.T) {
	client, page := startBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		var msg bridgeRequest
		if err := page.ReadJSON(&msg); err != nil {
			return
		}
		_ = page.WriteJSON(map[string]any{
			"type":  "response",
			"id":    msg.ID,
			"error": map[string]any{"code": 4001, "message": "User rejected the request."},
		})
	}()

	_, err := client.Request(ctx, "eth_requestAccounts")
	var bridgeErr *BridgeError
	require.True(t, errors.As(err, &bridgeErr))
	assert.Equal(t, 4001, bridgeErr.Code)
	assert.Equal(t, "User rejected the request.", err.Error())
}

func TestBridgeClient_CloseFailsPending(t *testing.T) {
	client, page := startBridge(t)

	errs := make(chan error, 1)
	go func() {
		_, err := client.Request(context.Background(), "eth_requestAccounts")
		errs <- err
	}()

	// wait until the request reached the page, then drop the page
	var msg bridgeRequest
	require.NoError(t, page.ReadJSON(&msg))
	require.NoError(t, page.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrBridgeClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending request was not failed")
	}

	_, err := client.Request(context.Background(), "eth_accounts")
	assert.ErrorIs(t, err, ErrBridgeClosed)

	_, err = client.WaitHello(context.Background())
	assert.ErrorIs(t, err, ErrBridgeClosed)
}

func TestBridgeClient_RequestContextCancel(t *testing.T) {
	client, page := startBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := client.Request(ctx, "eth_requestAccounts")
		errs <- err
	}()

	var msg bridgeRequest
	require.NoError(t, page.ReadJSON(&msg))
	cancel()

	assert.ErrorIs(t, <-errs, context.Canceled)

	// a late answer for the abandoned id is ignored
	require.NoError(t, page.WriteJSON(map[string]any{"type": "response", "id": msg.ID, "result": []string{}}))
	client.mu.Lock()
	assert.Empty(t, client.pending)
	client.mu.Unlock()
}
