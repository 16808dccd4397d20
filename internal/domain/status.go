package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// StatusKind is the coarse connection state shown next to the Sign up button.
type StatusKind int

const (
	StatusNotConnected StatusKind = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// status kind string constants to avoid magic strings
const (
	statusStringNotConnected = "not_connected"
	statusStringConnecting   = "connecting"
	statusStringConnected    = "connected"
	statusStringError        = "error"
)

// user-facing status texts
const (
	TextNotConnected = "Not connected"
	TextConnecting   = "Connecting..."
	TextConnected    = "Connected"
	TextNoWallet     = "No injected wallet found"
	TextWebOnly      = "Wallet connect is only available on the web"
)

// String returns the string representation of the status kind
func (k StatusKind) String() string {
	switch k {
	case StatusNotConnected:
		return statusStringNotConnected
	case StatusConnecting:
		return statusStringConnecting
	case StatusConnected:
		return statusStringConnected
	case StatusError:
		return statusStringError
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k StatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *StatusKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case statusStringNotConnected:
		*k = StatusNotConnected
	case statusStringConnecting:
		*k = StatusConnecting
	case statusStringConnected:
		*k = StatusConnected
	case statusStringError:
		*k = StatusError
	default:
		return errors.Errorf("unknown status kind %q", string(text))
	}
	return nil
}

// ConnectionStatus pairs a status kind with the text rendered to the user.
type ConnectionStatus struct {
	Kind StatusKind `json:"kind"`
	Text string     `json:"text"`
}

func NotConnected() ConnectionStatus {
	return ConnectionStatus{Kind: StatusNotConnected, Text: TextNotConnected}
}

func Connecting() ConnectionStatus {
	return ConnectionStatus{Kind: StatusConnecting, Text: TextConnecting}
}

func Connected() ConnectionStatus {
	return ConnectionStatus{Kind: StatusConnected, Text: TextConnected}
}

// NoWalletFound is reported when the host supports wallets but none is injected.
func NoWalletFound() ConnectionStatus {
	return ConnectionStatus{Kind: StatusNotConnected, Text: TextNoWallet}
}

// WebOnly is reported when the host cannot reach any wallet at all.
func WebOnly() ConnectionStatus {
	return ConnectionStatus{Kind: StatusNotConnected, Text: TextWebOnly}
}

// ConnectFailed renders a failure of the account request.
func ConnectFailed(err error) ConnectionStatus {
	return ConnectionStatus{Kind: StatusError, Text: fmt.Sprintf("Error: %v", err)}
}

// BalanceFailed renders a failure of the balance request. The address stays set.
func BalanceFailed(err error) ConnectionStatus {
	return ConnectionStatus{Kind: StatusError, Text: fmt.Sprintf("Balance error: %v", err)}
}
