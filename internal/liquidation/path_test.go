package liquidation

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cadencefi/treasuryd/internal/domain"
)

func addr(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	return a
}

func TestEncodePathSingleHop(t *testing.T) {
	path, err := EncodePath([]common.Address{addr(0x0A), addr(0x0B)}, []uint32{3000})
	require.NoError(t, err)
	require.Len(t, path, MinPathLen)
	require.NoError(t, ValidatePath(path, addr(0x0A), addr(0x0B)))
}

func TestEncodePathMultiHop(t *testing.T) {
	tokens := []common.Address{addr(0x0A), addr(0x0B), addr(0x0C)}
	path, err := EncodePath(tokens, []uint32{500, 10000})
	require.NoError(t, err)
	require.Len(t, path, MinPathLen+23)
	require.NoError(t, ValidatePath(path, addr(0x0A), addr(0x0C)))

	// Fee bytes are big-endian in the middle of each hop.
	require.Equal(t, []byte{0x00, 0x01, 0xF4}, path[20:23])
	require.Equal(t, []byte{0x00, 0x27, 0x10}, path[43:46])
}

func TestEncodePathRejectsBadShapes(t *testing.T) {
	_, err := EncodePath([]common.Address{addr(0x0A)}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidPath)

	_, err = EncodePath([]common.Address{addr(0x0A), addr(0x0B)}, []uint32{1, 2})
	require.ErrorIs(t, err, domain.ErrInvalidPath)

	_, err = EncodePath([]common.Address{addr(0x0A), addr(0x0B)}, []uint32{0x1000000})
	require.ErrorIs(t, err, domain.ErrInvalidPath)
}

func TestValidatePathRejectsMalformed(t *testing.T) {
	valid, err := EncodePath([]common.Address{addr(0x0A), addr(0x0B)}, []uint32{3000})
	require.NoError(t, err)

	cases := []struct {
		name string
		path []byte
		from common.Address
		to   common.Address
	}{
		{"empty", nil, addr(0x0A), addr(0x0B)},
		{"below minimum", valid[:MinPathLen-1], addr(0x0A), addr(0x0B)},
		{"misaligned", append(append([]byte(nil), valid...), 0x00), addr(0x0A), addr(0x0B)},
		{"wrong start", valid, addr(0x0C), addr(0x0B)},
		{"wrong end", valid, addr(0x0A), addr(0x0C)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, ValidatePath(tc.path, tc.from, tc.to), domain.ErrInvalidPath)
		})
	}
}

// TestValidatePathRandomized cross-checks ValidatePath against its layout
// contract on generated paths: random lengths around the hop grid, with the
// endpoint addresses planted or corrupted independently.
func TestValidatePathRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(0x7061746873))
	from := addr(0x0A)
	to := addr(0x0B)

	for i := 0; i < 1000; i++ {
		hops := 1 + rng.Intn(4)
		n := pathAddrLen + hops*pathHopLen
		// A third of the samples get their length knocked off the grid, and
		// some of those are truncated below the single-hop minimum.
		if rng.Intn(3) == 0 {
			if rng.Intn(4) == 0 {
				n = rng.Intn(MinPathLen)
			} else {
				n += rng.Intn(2*pathHopLen) - pathHopLen
			}
		}
		path := make([]byte, n)
		rng.Read(path)

		goodStart := rng.Intn(2) == 0
		goodEnd := rng.Intn(2) == 0
		if goodStart && n >= pathAddrLen {
			copy(path[:pathAddrLen], from.Bytes())
		}
		if goodEnd && n >= pathAddrLen {
			copy(path[n-pathAddrLen:], to.Bytes())
		}

		wantOK := n >= MinPathLen &&
			(n-pathAddrLen)%pathHopLen == 0 &&
			bytes.Equal(path[:pathAddrLen], from.Bytes()) &&
			bytes.Equal(path[n-pathAddrLen:], to.Bytes())

		err := ValidatePath(path, from, to)
		if wantOK {
			require.NoError(t, err, "sample %d len %d", i, n)
		} else {
			require.ErrorIs(t, err, domain.ErrInvalidPath, "sample %d len %d", i, n)
		}
	}
}
