package gatekeeper

import (
	"sync"

	"github.com/gigpay/treasuryops/internal/entity"
)

// requestTracker holds the single outstanding write request. Requests are
// never reused: replace installs a fresh one and update only touches the
// request that is still current, so a confirmation arriving for an already
// replaced request cannot clobber the new one.
type requestTracker struct {
	mu  sync.Mutex
	req entity.WriteRequest
}

func (t *requestTracker) replace(req entity.WriteRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.req = req
}

func (t *requestTracker) update(id, txHash string, status entity.WriteStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.req.ID != id {
		return
	}
	if txHash != "" {
		t.req.TxHash = txHash
	}
	t.req.Status = status
}

func (t *requestTracker) current() entity.WriteRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.req
}
