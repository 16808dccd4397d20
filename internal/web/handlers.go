package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/vadiminshakov/hotdog/internal/clients"
	"github.com/vadiminshakov/hotdog/internal/domain"
	"github.com/vadiminshakov/hotdog/internal/session"
)

const qrSize = 256

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	sess := s.sessions.Create()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := indexTemplate.Execute(w, pageData{
		SessionID: sess.ID(),
		DogImage:  s.dogImage,
		State:     newStateView(sess.State()),
	})
	if err != nil {
		s.logger.Error("render index", zap.Error(err))
	}
}

// lookup resolves the session query parameter, answering 404 itself when it fails.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.URL.Query().Get("session"))
	if err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if !sess.StartConnect() {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.State())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	current, updates := sess.Subscribe()
	defer sess.Unsubscribe(updates)

	setStreamHeaders(w)

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	if err := writeEvent(w, "state", "", current); err != nil {
		s.logger.Debug("state stream write", zap.Error(err))
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case st, open := <-updates:
			if !open {
				return
			}
			if err := writeEvent(w, "state", "", st); err != nil {
				s.logger.Debug("state stream write", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	st := sess.State()
	if st.Address == nil {
		http.Error(w, "not connected", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(qrContent(*st.Address), qrcode.Medium, qrSize)
	if err != nil {
		s.logger.Error("encode address qr", zap.Error(err))
		http.Error(w, "failed to encode qr code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// qrContent renders hex addresses as an EIP-681 payment URI so wallet apps
// can scan it, anything else verbatim.
func qrContent(addr domain.Address) string {
	if common.IsHexAddress(addr.String()) {
		return "ethereum:" + addr.String()
	}
	return addr.String()
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if _, err := s.sessions.Get(id); err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("bridge upgrade failed", zap.Error(err))
		return
	}

	logger := s.logger.With(zap.String("session", id))
	bridge := clients.NewBridgeClient(conn, logger)
	if err := s.sessions.Attach(id, bridge); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown session"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer s.sessions.Detach(id, bridge)

	logger.Debug("wallet bridge attached")
	if err := bridge.Serve(s.base); err != nil {
		logger.Debug("wallet bridge closed", zap.Error(err))
	}
}

func (s *Server) handleJournalStream(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "journal not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// subscribe before replaying so nothing stored in between is lost
	live := s.journal.Subscribe()
	defer s.journal.Unsubscribe(live)

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("after"))
	records, err := s.journal.EventsAfter(lastIndex)
	if err != nil {
		s.logger.Error("journal stream initial load", zap.Error(err))
		http.Error(w, "failed to load journal", http.StatusInternalServerError)
		return
	}

	setStreamHeaders(w)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	send := func(entry domain.ConnectRecordEntry) error {
		if entry.Index <= lastIndex {
			return nil
		}
		if err := writeEvent(w, "connect", strconv.FormatUint(entry.Index, 10), entry.Record); err != nil {
			return err
		}
		lastIndex = entry.Index
		return nil
	}

	for _, entry := range records {
		if err := send(entry); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry, open := <-live:
			if !open {
				return
			}
			if err := send(entry); err != nil {
				s.logger.Debug("journal stream write", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func writeEvent(w http.ResponseWriter, event, id string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseLastEventID reads the resume index from Last-Event-ID, falling back to ?after=.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
