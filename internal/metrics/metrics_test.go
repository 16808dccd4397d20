package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/hotdog/internal/wallet"
	walletMock "github.com/vadiminshakov/hotdog/mocks/wallet"
)

func TestInstrument(t *testing.T) {
	m := New()
	provider := walletMock.NewProvider(t)
	provider.On("Request", mock.Anything, "eth_requestAccounts").Return(json.RawMessage(`["0x1"]`), nil).Once()
	provider.On("Request", mock.Anything, "eth_getBalance", "0x1", "latest").Return(nil, errors.New("boom")).Once()

	p := m.Instrument(provider)
	_, err := p.Request(context.Background(), "eth_requestAccounts")
	require.NoError(t, err)
	_, err = p.Request(context.Background(), "eth_getBalance", "0x1", "latest")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.walletRequests.WithLabelValues("eth_requestAccounts", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.walletRequests.WithLabelValues("eth_getBalance", "error")))
}

func TestInstrument_KeepsSentinels(t *testing.T) {
	m := New()
	assert.Nil(t, m.Instrument(nil))
	assert.Equal(t, wallet.Unavailable, m.Instrument(wallet.Unavailable))

	var nilMetrics *Metrics
	provider := walletMock.NewProvider(t)
	assert.Same(t, provider, nilMetrics.Instrument(provider))
	nilMetrics.RecordConnect("connected")
	nilMetrics.SessionOpened()
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordConnect("connected")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hotdog_connect_attempts_total{outcome="connected"} 1`)
	assert.Contains(t, string(body), "hotdog_sessions_active 1")
}
