package domain

import (
	"math/big"
	"time"
)

// State is the wallet panel state observed by renderers.
type State struct {
	Status    ConnectionStatus `json:"status"`
	Address   *Address         `json:"address,omitempty"`
	Balance   *Balance         `json:"balance,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewState returns the initial state of a fresh page session.
func NewState(now time.Time) State {
	return State{Status: NotConnected(), UpdatedAt: now}
}

// Clone returns a copy that shares nothing mutable with s.
func (s State) Clone() State {
	out := s
	if s.Address != nil {
		addr := *s.Address
		out.Address = &addr
	}
	if s.Balance != nil {
		bal := *s.Balance
		if bal.Wei != nil {
			bal.Wei = new(big.Int).Set(bal.Wei)
		}
		out.Balance = &bal
	}
	return out
}

// ConnectRecord is a journal entry describing how one connect attempt ended.
type ConnectRecord struct {
	Timestamp  time.Time  `json:"ts"`
	Session    string     `json:"session"`
	Outcome    string     `json:"outcome"`
	Status     StatusKind `json:"status"`
	Text       string     `json:"text"`
	Address    string     `json:"address,omitempty"`
	BalanceEth string     `json:"balance_eth,omitempty"`
	BalanceWei string     `json:"balance_wei,omitempty"`
}

// NewConnectRecord captures the final state of an attempt.
func NewConnectRecord(ts time.Time, session, outcome string, state State) ConnectRecord {
	rec := ConnectRecord{
		Timestamp: ts,
		Session:   session,
		Outcome:   outcome,
		Status:    state.Status.Kind,
		Text:      state.Status.Text,
	}
	if state.Address != nil {
		rec.Address = state.Address.String()
	}
	if state.Balance != nil {
		rec.BalanceEth = state.Balance.Eth
		if state.Balance.Wei != nil {
			rec.BalanceWei = state.Balance.Wei.String()
		}
	}
	return rec
}

// ConnectRecordEntry bundles a record with its journal index.
type ConnectRecordEntry struct {
	Index  uint64        `json:"index"`
	Record ConnectRecord `json:"record"`
}
