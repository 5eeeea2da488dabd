package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFractionBounds(t *testing.T) {
	cases := []struct {
		name string
		n    *big.Int
		ok   bool
	}{
		{"zero", big.NewInt(0), true},
		{"half", big.NewInt(500_000_000_000_000_000), true},
		{"one", FractionScale(), true},
		{"negative", big.NewInt(-1), false},
		{"above one", new(big.Int).Add(FractionScale(), big.NewInt(1)), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := NewFraction(tc.n)
			if !tc.ok {
				require.ErrorIs(t, err, ErrInvalidFraction)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.n.String(), f.BigInt().String())
		})
	}
}

func TestFractionMulFloors(t *testing.T) {
	third := MustFraction(333_333_333_333_333_333)
	out := third.Mul(big.NewInt(10))
	require.Equal(t, "3", out.String())

	// 1e18 exactly passes the amount through.
	one, err := NewFraction(FractionScale())
	require.NoError(t, err)
	require.True(t, one.IsOne())
	require.Equal(t, "7", one.Mul(big.NewInt(7)).String())

	require.Equal(t, "0", Fraction{}.Mul(big.NewInt(1_000_000)).String())
}

func TestFractionComplementSumsToWhole(t *testing.T) {
	r := MustFraction(123_456_789_000_000_000)
	balance := big.NewInt(1_000_003)

	part := r.Complement().Mul(balance)
	rest := new(big.Int).Sub(balance, part)

	require.Equal(t, balance, new(big.Int).Add(part, rest))
	require.True(t, rest.Sign() >= 0)
}

func TestFractionMulIsMonotone(t *testing.T) {
	r := MustFraction(700_000_000_000_000_001)
	prev := new(big.Int)
	for i := int64(1); i <= 50; i++ {
		out := r.Mul(big.NewInt(i))
		require.True(t, out.Cmp(prev) >= 0, "amount %d", i)
		prev = out
	}
}

func TestCeilDiv(t *testing.T) {
	require.Equal(t, "0", CeilDiv(big.NewInt(0), big.NewInt(7)).String())
	require.Equal(t, "1", CeilDiv(big.NewInt(1), big.NewInt(7)).String())
	require.Equal(t, "1", CeilDiv(big.NewInt(7), big.NewInt(7)).String())
	require.Equal(t, "2", CeilDiv(big.NewInt(8), big.NewInt(7)).String())
}

func TestMustFractionPanicsOutOfRange(t *testing.T) {
	require.Panics(t, func() { MustFraction(-1) })
}
