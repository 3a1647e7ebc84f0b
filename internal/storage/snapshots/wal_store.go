// Package snapshots persists treasury allocation samples in a WAL, scoped
// per (chain, treasury) so switching networks never mixes history. It is
// the only source of historical data when the primary source is down.
package snapshots

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/gigpay/treasuryops/internal/entity"
)

const (
	defaultSnapshotDir   = "./wal/treasury"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 100
	snapshotKeyPrefix    = "treasury_snapshot_"

	// DefaultSampleInterval is the minimum spacing between persisted
	// samples for one scope.
	DefaultSampleInterval = 60 * time.Second
)

// WALStore appends treasury snapshots to a write-ahead log and answers
// range queries over them.
type WALStore struct {
	wal      *gowal.Wal
	scope    string
	interval time.Duration
	now      func() time.Time

	mu         sync.RWMutex
	lastSample time.Time
}

// NewWALStore opens (or creates) the snapshot WAL under dir for the given
// chain and treasury address. Samples closer together than interval are
// dropped.
func NewWALStore(dir string, chainID uint64, treasuryAddr string, interval time.Duration) (*WALStore, error) {
	if dir == "" {
		dir = defaultSnapshotDir
	}
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: snapshotSegmentLimit,
		MaxSegments:      snapshotMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init treasury snapshot WAL")
	}

	s := &WALStore{
		wal:      wal,
		scope:    scopeKey(chainID, treasuryAddr),
		interval: interval,
		now:      time.Now,
	}
	s.lastSample = s.restoreLastSample()

	return s, nil
}

func scopeKey(chainID uint64, treasuryAddr string) string {
	addr := strings.ToLower(strings.TrimSpace(treasuryAddr))
	if addr == "" {
		addr = "unknown"
	}
	return fmt.Sprintf("%s%d:%s", snapshotKeyPrefix, chainID, addr)
}

// restoreLastSample scans backwards for the newest sample of this scope so
// the interval gate survives restarts.
func (s *WALStore) restoreLastSample() time.Time {
	for idx := s.wal.CurrentIndex(); idx > 0; idx-- {
		key, payload, err := s.wal.Get(idx)
		if err != nil || key != s.scope {
			continue
		}
		var snap entity.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			continue
		}
		return snap.Timestamp
	}
	return time.Time{}
}

// Sample appends a snapshot of current if the last persisted sample for
// this scope is older than the configured interval. Calling it twice
// within the window never creates two rows.
func (s *WALStore) Sample(current entity.Totals) error {
	if s == nil || s.wal == nil {
		return errors.New("treasury snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastSample.IsZero() && now.Sub(s.lastSample) < s.interval {
		return nil
	}

	snap := entity.SnapshotFromTotals(current, now)
	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal treasury snapshot")
	}

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, s.scope, payload); err != nil {
		return errors.Wrap(err, "append treasury snapshot")
	}

	s.lastSample = now
	return nil
}

// GetRange returns snapshots for this scope whose timestamp falls within
// [now - window(r), now], oldest first. Range "all" is unbounded.
func (s *WALStore) GetRange(r entity.Range) ([]entity.Snapshot, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("treasury snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if window := r.Window(); window > 0 {
		cutoff = s.now().Add(-window)
	}

	var snaps []entity.Snapshot
	for idx := uint64(1); idx <= s.wal.CurrentIndex(); idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || key != s.scope {
			continue
		}
		var snap entity.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, errors.Wrap(err, "decode treasury snapshot")
		}
		if !cutoff.IsZero() && snap.Timestamp.Before(cutoff) {
			continue
		}
		snaps = append(snaps, snap)
	}

	return snaps, nil
}

// Latest returns the newest snapshot for this scope, or false when the
// series is still empty.
func (s *WALStore) Latest() (entity.Snapshot, bool, error) {
	if s == nil || s.wal == nil {
		return entity.Snapshot{}, false, errors.New("treasury snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for idx := s.wal.CurrentIndex(); idx > 0; idx-- {
		key, payload, err := s.wal.Get(idx)
		if err != nil || key != s.scope {
			continue
		}
		var snap entity.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return entity.Snapshot{}, false, errors.Wrap(err, "decode treasury snapshot")
		}
		return snap, true, nil
	}
	return entity.Snapshot{}, false, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("treasury snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
