package domain

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStatus_Texts(t *testing.T) {
	tests := []struct {
		name     string
		status   ConnectionStatus
		kind     StatusKind
		expected string
	}{
		{"initial", NotConnected(), StatusNotConnected, "Not connected"},
		{"connecting", Connecting(), StatusConnecting, "Connecting..."},
		{"connected", Connected(), StatusConnected, "Connected"},
		{"no wallet", NoWalletFound(), StatusNotConnected, "No injected wallet found"},
		{"web only", WebOnly(), StatusNotConnected, "Wallet connect is only available on the web"},
		{"connect error", ConnectFailed(errors.New("user rejected")), StatusError, "Error: user rejected"},
		{"balance error", BalanceFailed(errors.New("timeout")), StatusError, "Balance error: timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.status.Kind)
			assert.Equal(t, tt.expected, tt.status.Text)
		})
	}
}

func TestStatusKind_TextRoundTrip(t *testing.T) {
	for _, kind := range []StatusKind{StatusNotConnected, StatusConnecting, StatusConnected, StatusError} {
		text, err := kind.MarshalText()
		require.NoError(t, err)

		var decoded StatusKind
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, kind, decoded)
	}

	var k StatusKind
	assert.Error(t, k.UnmarshalText([]byte("bogus")))
	assert.Equal(t, "unknown", StatusKind(42).String())
}

func TestState_JSON(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	addr := Address("0xabc")
	bal := NewBalance(big.NewInt(1_000_000_000_000_000_000))
	state := State{Status: Connected(), Address: &addr, Balance: &bal, UpdatedAt: ts}

	payload, err := json.Marshal(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"status": {"kind": "connected", "text": "Connected"},
		"address": "0xabc",
		"balance": {"wei": "1000000000000000000", "eth": "1.0000", "exact": "1"},
		"updated_at": "2026-01-02T03:04:05Z"
	}`, string(payload))

	empty, err := json.Marshal(NewState(ts))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": {"kind": "not_connected", "text": "Not connected"}, "updated_at": "2026-01-02T03:04:05Z"}`, string(empty))
}

func TestState_Clone(t *testing.T) {
	addr := Address("0xabc")
	bal := NewBalance(big.NewInt(5))
	state := State{Status: Connected(), Address: &addr, Balance: &bal}

	clone := state.Clone()
	*state.Address = "0xdef"
	state.Balance.Wei.SetInt64(9)

	assert.Equal(t, Address("0xabc"), *clone.Address)
	assert.Equal(t, int64(5), clone.Balance.Wei.Int64())
}

func TestNewConnectRecord(t *testing.T) {
	ts := time.Now()
	addr := Address("0xabc")
	bal := NewBalance(big.NewInt(1_000_000_000_000_000_000))
	rec := NewConnectRecord(ts, "s1", "connected", State{Status: Connected(), Address: &addr, Balance: &bal})

	assert.Equal(t, "s1", rec.Session)
	assert.Equal(t, "connected", rec.Outcome)
	assert.Equal(t, StatusConnected, rec.Status)
	assert.Equal(t, "0xabc", rec.Address)
	assert.Equal(t, "1.0000", rec.BalanceEth)
	assert.Equal(t, "1000000000000000000", rec.BalanceWei)

	bare := NewConnectRecord(ts, "s2", "no_wallet", State{Status: NoWalletFound()})
	assert.Empty(t, bare.Address)
	assert.Empty(t, bare.BalanceEth)
}

func TestState_View(t *testing.T) {
	addr := Address("0xabc")
	bal := NewBalance(big.NewInt(1_500_000_000_000_000_000))

	initial := State{Status: NotConnected()}
	assert.Equal(t, "Not connected", initial.Headline())
	assert.Empty(t, initial.Problem())
	assert.Empty(t, initial.BalanceLine())

	connected := State{Status: Connected(), Address: &addr, Balance: &bal}
	assert.Equal(t, "Connected: 0xabc", connected.Headline())
	assert.Empty(t, connected.Problem())
	assert.Equal(t, "· ETH: 1.5000", connected.BalanceLine())

	balanceErr := State{Status: BalanceFailed(errors.New("boom")), Address: &addr}
	assert.Equal(t, "Connected: 0xabc", balanceErr.Headline())
	assert.Equal(t, "Balance error: boom", balanceErr.Problem())

	connectErr := State{Status: ConnectFailed(errors.New("nope"))}
	assert.Equal(t, "Error: nope", connectErr.Headline())
	assert.Empty(t, connectErr.Problem())
}
