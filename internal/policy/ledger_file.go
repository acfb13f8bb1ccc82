package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kazz187/issuelab/pkg/cerr"
	"github.com/kazz187/issuelab/pkg/storage"
)

const fileLedgerPath = "policy/rate_ledger.json"

// FileLedger persists RateState as JSON in storage so counters survive across
// CI runs. Concurrent runs on one host are serialized through a lock file,
// and callers within one process through mu, since a flock handle that
// already holds the lock reports success to every TryLock.
type FileLedger struct {
	mu    sync.Mutex
	store storage.Storage
	lock  *flock.Flock
}

func NewFileLedger(store storage.Storage, lockPath string) *FileLedger {
	return &FileLedger{store: store, lock: flock.New(lockPath)}
}

func (f *FileLedger) Update(ctx context.Context, fn func(*RateState) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	locked, err := f.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to lock rate ledger: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock rate ledger: %s", f.lock.Path())
	}
	defer f.lock.Unlock()

	state := NewRateState()
	data, err := f.store.Read(ctx, fileLedgerPath)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return cerr.WrapStorageReadError("rate ledger", err)
	default:
		if err := json.Unmarshal(data, state); err != nil {
			return cerr.NewError(cerr.DataLoss, "corrupt rate ledger", err)
		}
		state.normalize()
	}

	if err := fn(state); err != nil {
		return err
	}
	out, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode rate ledger: %w", err)
	}
	if err := f.store.Write(ctx, fileLedgerPath, out); err != nil {
		return cerr.WrapStorageWriteError("rate ledger", err)
	}
	return nil
}
