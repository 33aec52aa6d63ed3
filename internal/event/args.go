package event

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Args holds decoded event arguments keyed by their ABI name.
type Args map[string]interface{}

func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Decimal returns a numeric argument as a decimal value.
func (a Args) Decimal(name string) (decimal.Decimal, bool) {
	switch v := a[name].(type) {
	case decimal.Decimal:
		return v, true
	case *big.Int:
		if v == nil {
			return decimal.Zero, false
		}
		return decimal.NewFromBigInt(v, 0), true
	case uint64:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case uint8:
		return decimal.NewFromInt(int64(v)), true
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// Big returns an integer argument.
func (a Args) Big(name string) (*big.Int, bool) {
	switch v := a[name].(type) {
	case *big.Int:
		if v == nil {
			return nil, false
		}
		return new(big.Int).Set(v), true
	case uint64:
		return new(big.Int).SetUint64(v), true
	case uint8:
		return big.NewInt(int64(v)), true
	case int64:
		return big.NewInt(v), true
	case int:
		return big.NewInt(int64(v)), true
	default:
		return nil, false
	}
}

// Address returns an address argument.
func (a Args) Address(name string) (common.Address, bool) {
	switch v := a[name].(type) {
	case common.Address:
		return v, true
	case string:
		if common.IsHexAddress(v) {
			return common.HexToAddress(v), true
		}
	}
	return common.Address{}, false
}

func (a Args) Text(name string) string {
	v, ok := a[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case common.Address:
		return t.Hex()
	case decimal.Decimal:
		return t.String()
	case *big.Int:
		return t.String()
	case []byte:
		return "0x" + common.Bytes2Hex(t)
	case [32]byte:
		return common.BytesToHash(t[:]).Hex()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (a Args) Bool(name string) (bool, bool) {
	v, ok := a[name].(bool)
	return v, ok
}

// Lookup finds an argument ignoring case and a leading underscore.
func (a Args) Lookup(name string) (string, bool) {
	want := strings.ToLower(strings.TrimPrefix(name, "_"))
	for k := range a {
		if strings.ToLower(strings.TrimPrefix(k, "_")) == want {
			return k, true
		}
	}
	return "", false
}
