package hazardindex

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/config"
)

// Index serves the most recently installed snapshot. Readers never block
// writers: a refresh builds a new snapshot and swaps the pointer.
type Index struct {
	cfg     config.IndexConfig
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

func New(cfg config.IndexConfig) *Index {
	return &Index{
		cfg: cfg,
		now: time.Now,
	}
}

func (ix *Index) Policy() Policy {
	return Policy{
		IncludePending: ix.cfg.IncludePending,
		PendingWeight:  ix.cfg.PendingWeight,
	}
}

func (ix *Index) Install(s *Snapshot) {
	ix.current.Store(s)
}

// Current returns the snapshot requests should score against. A missing or
// stale snapshot is an upstream failure unless degraded scoring is enabled,
// in which case an empty snapshot flagged as degraded is returned.
func (ix *Index) Current() (*Snapshot, error) {
	const op = "hazardindex.Current"

	s := ix.current.Load()
	now := ix.now()

	var staleErr error
	switch {
	case s == nil:
		staleErr = errors.New("hazard index has not been loaded")
	case ix.cfg.MaxStaleness > 0 && now.Sub(s.BuiltAt()) > ix.cfg.MaxStaleness:
		staleErr = fmt.Errorf("hazard snapshot %d is %s old", s.Version(), now.Sub(s.BuiltAt()).Round(time.Second))
	default:
		return s, nil
	}

	if ix.cfg.DegradeNeutral {
		var version uint64
		if s != nil {
			version = s.Version()
		}
		return degradedSnapshot(version, now, ix.Policy()), nil
	}
	return nil, apperr.Unavailable(op, staleErr)
}
