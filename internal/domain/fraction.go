// Package domain defines the core types shared by the treasury engines:
// 1e18-scaled fractions, liquidation routes, harvest records, engine events,
// sentinel errors, and the store/cache/blob interfaces implemented by the
// infrastructure packages.
package domain

import (
	"fmt"
	"math/big"
)

// fracScale is the fixed-point denominator for fractions: 1e18.
var fracScale = big.NewInt(1_000_000_000_000_000_000)

// FractionScale returns a copy of the 1e18 fixed-point denominator.
func FractionScale() *big.Int {
	return new(big.Int).Set(fracScale)
}

// Fraction is a ratio in [0, 1] scaled by 1e18. The zero value is 0.
type Fraction struct {
	n *big.Int
}

// NewFraction validates that n lies in [0, 1e18] and returns it as a Fraction.
func NewFraction(n *big.Int) (Fraction, error) {
	if n == nil || n.Sign() < 0 || n.Cmp(fracScale) > 0 {
		return Fraction{}, fmt.Errorf("%w: %v not in [0, 1e18]", ErrInvalidFraction, n)
	}
	return Fraction{n: new(big.Int).Set(n)}, nil
}

// MustFraction converts a scaled int64 to a Fraction and panics when it is out
// of range. Intended for constants and tests.
func MustFraction(n int64) Fraction {
	f, err := NewFraction(big.NewInt(n))
	if err != nil {
		panic(err)
	}
	return f
}

// BigInt returns a copy of the scaled numerator.
func (f Fraction) BigInt() *big.Int {
	if f.n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(f.n)
}

// IsZero reports whether the fraction is exactly 0.
func (f Fraction) IsZero() bool {
	return f.n == nil || f.n.Sign() == 0
}

// IsOne reports whether the fraction is exactly 1e18.
func (f Fraction) IsOne() bool {
	return f.n != nil && f.n.Cmp(fracScale) == 0
}

// Mul returns floor(amount * f / 1e18). Balance-derived quantities always
// round down so the engines never claim more than is actually held.
func (f Fraction) Mul(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 || f.IsZero() {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, f.n)
	return out.Quo(out, fracScale)
}

// Complement returns 1 - f.
func (f Fraction) Complement() Fraction {
	return Fraction{n: new(big.Int).Sub(fracScale, f.BigInt())}
}

func (f Fraction) String() string {
	return f.BigInt().String()
}

// CeilDiv returns ceil(a / b). It panics when b is zero, matching big.Int.
func CeilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
