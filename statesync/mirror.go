package statesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/edumesh/core"
)

// ErrNoMemoryStore is reported when mirroring is requested without a store.
var ErrNoMemoryStore = errors.New("memory store not configured")

// MirrorToMemory forwards the whole session to the long-term memory store.
// Errors and panics are converted into a failed StepResult; they never
// propagate and never touch session state.
func MirrorToMemory(ctx context.Context, store core.MemoryStore, sess *core.Session) (res StepResult) {
	if store == nil {
		return skipped(StepMirrorMemory, ErrNoMemoryStore.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			res = failed(StepMirrorMemory, fmt.Errorf("memory store panicked: %v", r))
		}
	}()

	if err := store.AddSession(ctx, sess); err != nil {
		return failed(StepMirrorMemory, fmt.Errorf("add session to memory: %w", err))
	}

	return succeeded(StepMirrorMemory, "session forwarded")
}
