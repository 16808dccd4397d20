package domain

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	hexPrefix = "0x"
	// weiPerEth is exactly representable as float64.
	weiPerEth   = 1e18
	ethDecimals = 18
	ethFraction = 4
	maxWeiBits  = 128
)

var (
	// ErrNotHexQuantity means the value is not a "0x"-prefixed string.
	ErrNotHexQuantity = errors.New("balance is not a 0x-prefixed hex string")
	// ErrMalformedWei means the hex digits could not be decoded as an unsigned 128-bit integer.
	ErrMalformedWei = errors.New("malformed wei amount")
)

// Address is a wallet account identifier as returned by the wallet.
type Address string

func (a Address) String() string { return string(a) }

// Balance holds a native balance in wei and its ETH renderings.
type Balance struct {
	Wei *big.Int
	// Eth is wei / 1e18 in floating point with exactly 4 fractional digits.
	Eth string
	// Exact is the lossless ETH amount.
	Exact decimal.Decimal
}

// NewBalance builds a Balance from a wei amount.
func NewBalance(wei *big.Int) Balance {
	if wei == nil {
		wei = new(big.Int)
	}
	return Balance{
		Wei:   new(big.Int).Set(wei),
		Eth:   FormatEth(wei),
		Exact: decimal.NewFromBigInt(wei, -ethDecimals),
	}
}

type balanceJSON struct {
	Wei   string          `json:"wei"`
	Eth   string          `json:"eth"`
	Exact decimal.Decimal `json:"exact"`
}

// MarshalJSON keeps wei as a decimal string so browsers do not lose precision.
func (b Balance) MarshalJSON() ([]byte, error) {
	wei := "0"
	if b.Wei != nil {
		wei = b.Wei.String()
	}
	return json.Marshal(balanceJSON{Wei: wei, Eth: b.Eth, Exact: b.Exact})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Balance) UnmarshalJSON(data []byte) error {
	var raw balanceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	wei, ok := new(big.Int).SetString(raw.Wei, 10)
	if !ok {
		return errors.Errorf("invalid wei amount %q", raw.Wei)
	}
	b.Wei = wei
	b.Eth = raw.Eth
	b.Exact = raw.Exact
	return nil
}

// ParseWeiHex decodes a "0x"-prefixed hex quantity into wei.
// Leading zeros are accepted; values wider than 128 bits are rejected.
func ParseWeiHex(quantity string) (*big.Int, error) {
	if !strings.HasPrefix(quantity, hexPrefix) {
		return nil, ErrNotHexQuantity
	}
	digits := quantity[len(hexPrefix):]
	if digits == "" {
		return nil, errors.Wrap(ErrMalformedWei, "no hex digits")
	}
	for i := 0; i < len(digits); i++ {
		if !isHexDigit(digits[i]) {
			return nil, errors.Wrapf(ErrMalformedWei, "invalid hex digit %q", digits[i])
		}
	}

	wei, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedWei, "cannot decode %q", digits)
	}
	if wei.BitLen() > maxWeiBits {
		return nil, errors.Wrapf(ErrMalformedWei, "value exceeds %d bits", maxWeiBits)
	}
	return wei, nil
}

// FormatEth renders wei as ETH using float division, 4 fractional digits.
func FormatEth(wei *big.Int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(weiPerEth)).Float64()
	return strconv.FormatFloat(eth, 'f', ethFraction, 64)
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
