// Package guard provides the non-reentrant call guard held by every
// state-mutating engine entry point. Each engine owns one Guard; a call that
// arrives while the guard is held, including a re-entrant call made from an
// external collaborator invoked mid-operation, fails immediately instead of
// interleaving with the in-flight mutation.
package guard

import (
	"sync"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// Guard is an exclusive, non-blocking entry lock. The zero value is ready to
// use and must not be copied after first use.
type Guard struct {
	mu sync.Mutex
}

// Enter acquires the guard. On success it returns the release function, which
// the caller must invoke on every exit path (defer it immediately). When the
// guard is already held it returns domain.ErrReentrantCall.
func (g *Guard) Enter() (func(), error) {
	if !g.mu.TryLock() {
		return nil, domain.ErrReentrantCall
	}
	return g.mu.Unlock, nil
}
