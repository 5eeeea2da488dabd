package guard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cadencefi/treasuryd/internal/domain"
)

func TestGuardEnterRelease(t *testing.T) {
	var g Guard

	release, err := g.Enter()
	require.NoError(t, err)

	// Second entry while held must fail with the sentinel.
	_, err = g.Enter()
	require.ErrorIs(t, err, domain.ErrReentrantCall)

	release()

	// Released guard can be re-acquired.
	release2, err := g.Enter()
	require.NoError(t, err)
	release2()
}

func TestGuardIndependentInstances(t *testing.T) {
	var a, b Guard

	releaseA, err := a.Enter()
	require.NoError(t, err)
	defer releaseA()

	// Holding one guard does not block another engine's guard.
	releaseB, err := b.Enter()
	require.NoError(t, err)
	releaseB()
}
