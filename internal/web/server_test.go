package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/hotdog/config"
	"github.com/vadiminshakov/hotdog/internal/domain"
	"github.com/vadiminshakov/hotdog/internal/metrics"
	"github.com/vadiminshakov/hotdog/internal/session"
	"github.com/vadiminshakov/hotdog/internal/storage/journal"
)

const testAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type testEnv struct {
	server   *httptest.Server
	registry *session.Registry
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	registry := session.NewRegistry(ctx, time.Minute, 200*time.Millisecond, session.Options{Metrics: cfg.Metrics})
	srv := NewServer(cfg, registry)
	srv.base = ctx

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		registry.Close()
		ts.Close()
	})
	return &testEnv{server: ts, registry: registry}
}

// fakePage dials the bridge and answers wallet requests the way the page script does.
func (e *testEnv) fakePage(t *testing.T, sessionID string, hasWallet bool, answer func(method string, params []any) (any, *map[string]any)) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/wallet/bridge?session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "hello", "wallet": hasWallet}))

	go func() {
		for {
			var msg struct {
				Type   string `json:"type"`
				ID     uint64 `json:"id"`
				Method string `json:"method"`
				Params []any  `json:"params"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			result, walletErr := answer(msg.Method, msg.Params)
			reply := map[string]any{"type": "response", "id": msg.ID}
			if walletErr != nil {
				reply["error"] = *walletErr
			} else {
				reply["result"] = result
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}()
}

func happyWallet(method string, _ []any) (any, *map[string]any) {
	switch method {
	case "eth_requestAccounts":
		return []string{testAddress}, nil
	case "eth_getBalance":
		return "0xde0b6b3a7640000", nil
	}
	return nil, &map[string]any{"code": 4200, "message": "unsupported"}
}

func (e *testEnv) state(t *testing.T, id string) domain.State {
	t.Helper()
	resp, err := http.Get(e.server.URL + "/session/state?session=" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st domain.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

func (e *testEnv) connect(t *testing.T, id string) {
	t.Helper()
	resp, err := http.Post(e.server.URL+"/session/connect?session="+id, "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestServer_Index(t *testing.T) {
	env := newTestEnv(t, Config{Logger: zap.NewNop()})

	resp, err := http.Get(env.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Sign up")
	assert.Contains(t, string(body), "HotDog! 🌭")
	assert.Contains(t, string(body), "Not connected")
	assert.Contains(t, string(body), config.DefaultDogImage)
	assert.Equal(t, 1, env.registry.Len(), "serving the page opens a session")

	resp, err = http.Get(env.server.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_IndexGzip(t *testing.T) {
	registry := session.NewRegistry(context.Background(), time.Minute, time.Second, session.Options{})
	defer registry.Close()
	srv := NewServer(Config{}, registry)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestServer_ConnectFlowOverBridge(t *testing.T) {
	m := metrics.New()
	env := newTestEnv(t, Config{Metrics: m})
	sess := env.registry.Create()
	env.fakePage(t, sess.ID(), true, happyWallet)

	resp, err := http.Get(env.server.URL + "/session/qr.png?session=" + sess.ID())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no qr code before an address is known")

	env.connect(t, sess.ID())

	require.Eventually(t, func() bool {
		st := env.state(t, sess.ID())
		return st.Balance != nil
	}, 5*time.Second, 20*time.Millisecond)

	st := env.state(t, sess.ID())
	assert.Equal(t, "Connected", st.Status.Text)
	require.NotNil(t, st.Address)
	assert.Equal(t, domain.Address(testAddress), *st.Address)
	assert.Equal(t, "1.0000", st.Balance.Eth)

	resp, err = http.Get(env.server.URL + "/session/qr.png?session=" + sess.ID())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp, err = http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `hotdog_wallet_requests_total{method="eth_getBalance",outcome="ok"} 1`)
}

func TestServer_WalletRejects(t *testing.T) {
	env := newTestEnv(t, Config{})
	sess := env.registry.Create()
	env.fakePage(t, sess.ID(), true, func(string, []any) (any, *map[string]any) {
		return nil, &map[string]any{"code": 4001, "message": "User rejected the request."}
	})

	env.connect(t, sess.ID())

	require.Eventually(t, func() bool {
		return env.state(t, sess.ID()).Status.Kind == domain.StatusError
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Error: eth_requestAccounts rejected: User rejected the request.", env.state(t, sess.ID()).Status.Text)
}

func TestServer_PageWithoutWallet(t *testing.T) {
	env := newTestEnv(t, Config{})
	sess := env.registry.Create()
	env.fakePage(t, sess.ID(), false, happyWallet)

	env.connect(t, sess.ID())

	require.Eventually(t, func() bool {
		return env.state(t, sess.ID()).Status.Text == "No injected wallet found"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServer_StateStream(t *testing.T) {
	env := newTestEnv(t, Config{})
	sess := env.registry.Create()
	env.fakePage(t, sess.ID(), true, happyWallet)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/session/stream?session="+sess.ID(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(resp.Body)

	first := <-events
	assert.Equal(t, "state", first.event)
	assert.Contains(t, first.data, `"text":"Not connected"`)

	env.connect(t, sess.ID())

	var texts []string
	for ev := range events {
		var st domain.State
		require.NoError(t, json.Unmarshal([]byte(ev.data), &st))
		texts = append(texts, st.Status.Text)
		if st.Balance != nil {
			break
		}
	}
	assert.Equal(t, []string{"Connecting...", "Connected", "Connected"}, texts)
}

func TestServer_UnknownSession(t *testing.T) {
	env := newTestEnv(t, Config{})

	for _, path := range []string{"/session/state", "/session/stream", "/session/qr.png", "/wallet/bridge"} {
		resp, err := http.Get(env.server.URL + path + "?session=missing")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp, err := http.Post(env.server.URL+"/session/connect?session=missing", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(env.server.URL + "/session/connect?session=missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_JournalStream(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		resp, err := http.Get(env.server.URL + "/journal/stream")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("replay and resume", func(t *testing.T) {
		store, err := journal.NewWALStore(t.TempDir())
		require.NoError(t, err)
		feed := journal.NewFeed(store, zap.NewNop())
		defer feed.Close()

		feed.Record(domain.ConnectRecord{Session: "a", Outcome: "no_wallet"})
		feed.Record(domain.ConnectRecord{Session: "b", Outcome: "connected"})

		env := newTestEnv(t, Config{Journal: feed})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/journal/stream", nil)
		require.NoError(t, err)
		req.Header.Set("Last-Event-ID", "1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		events := readEvents(resp.Body)
		replayed := <-events
		assert.Equal(t, "2", replayed.id)
		assert.Equal(t, "connect", replayed.event)
		assert.Contains(t, replayed.data, `"session":"b"`)

		feed.Record(domain.ConnectRecord{Session: "c", Outcome: "web_only"})
		live := <-events
		assert.Equal(t, "3", live.id)
		assert.Contains(t, live.data, `"outcome":"web_only"`)
	})
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, uint64(7), parseLastEventID("7", "3"))
	assert.Equal(t, uint64(3), parseLastEventID("", " 3 "))
	assert.Equal(t, uint64(0), parseLastEventID("", ""))
	assert.Equal(t, uint64(0), parseLastEventID("abc", ""))
}

func TestQRContent(t *testing.T) {
	assert.Equal(t, "ethereum:"+testAddress, qrContent(testAddress))
	assert.Equal(t, "not-an-address", qrContent("not-an-address"))
}

type sseEvent struct {
	id    string
	event string
	data  string
}

func readEvents(body io.Reader) chan sseEvent {
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(body)
		var ev sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if ev.event != "" {
					out <- ev
				}
				ev = sseEvent{}
			case strings.HasPrefix(line, "id: "):
				ev.id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "event: "):
				ev.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	return out
}
