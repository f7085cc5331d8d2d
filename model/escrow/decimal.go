package escrow

import (
	"database/sql/driver"
	"fmt"
	"math/big"

	"cosmossdk.io/math"
)

// WeiPrecision is the number of fractional digits carried by the contract's fixed-point amounts.
const WeiPrecision = math.LegacyPrecision

// Decimal is an exact decimal amount with WeiPrecision fractional digits. The zero value is a valid zero.
type Decimal struct {
	dec math.LegacyDec
}

var (
	_ driver.Valuer = Decimal{}
	_ fmt.Stringer  = Decimal{}
)

func ZeroDecimal() Decimal {
	return Decimal{dec: math.LegacyZeroDec()}
}

// FromWei converts a fixed-point integer scaled by 10^18 into a Decimal without loss of precision.
func FromWei(i *big.Int) Decimal {
	if i == nil {
		return ZeroDecimal()
	}
	return Decimal{dec: math.LegacyNewDecFromBigIntWithPrec(i, WeiPrecision)}
}

// ParseDecimal parses a decimal string such as "1.5" or "0.000000000000000100".
func ParseDecimal(s string) (Decimal, error) {
	d, err := math.LegacyNewDecFromStr(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return Decimal{dec: d}, nil
}

// MustParseDecimal is like ParseDecimal but panics on error. Intended for constants and tests.
func MustParseDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Decimal) get() math.LegacyDec {
	if d.dec.IsNil() {
		return math.LegacyZeroDec()
	}
	return d.dec
}

func (d Decimal) Add(o Decimal) Decimal {
	return Decimal{dec: d.get().Add(o.get())}
}

func (d Decimal) Sub(o Decimal) Decimal {
	return Decimal{dec: d.get().Sub(o.get())}
}

// QuoInt64 divides d by n, truncating at WeiPrecision digits. Division by zero yields zero.
func (d Decimal) QuoInt64(n int64) Decimal {
	if n == 0 {
		return ZeroDecimal()
	}
	return Decimal{dec: d.get().QuoInt64(n)}
}

func (d Decimal) IsPositive() bool {
	return d.get().IsPositive()
}

func (d Decimal) IsZero() bool {
	return d.get().IsZero()
}

func (d Decimal) Equal(o Decimal) bool {
	return d.get().Equal(o.get())
}

// Wei returns the fixed-point integer representation of d.
func (d Decimal) Wei() *big.Int {
	return d.get().BigInt()
}

// String always renders WeiPrecision fractional digits so equal values have identical text.
func (d Decimal) String() string {
	return d.get().String()
}

// Value implements driver.Valuer so go-pg writes the decimal as a numeric literal.
func (d Decimal) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *Decimal) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case nil:
		*d = ZeroDecimal()
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("cannot scan %T into decimal", src)
	}
	parsed, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
