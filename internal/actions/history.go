package actions

import (
	"sync"

	"github.com/fieldline/copilot/internal/models"
)

// historyEntry pairs an executed action with its result.
type historyEntry struct {
	action     models.Action
	result     *models.ActionResult
	rolledBack bool
}

// executionHistory is the in-memory record of executed actions keyed by
// action id, bounded to the most recent entries.
type executionHistory struct {
	mu    sync.Mutex
	limit int
	order []string
	items map[string]*historyEntry
}

func newExecutionHistory(limit int) *executionHistory {
	if limit <= 0 {
		limit = 1000
	}
	return &executionHistory{
		limit: limit,
		items: make(map[string]*historyEntry),
	}
}

func (h *executionHistory) record(action models.Action, result *models.ActionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.items[action.ID]; !exists {
		h.order = append(h.order, action.ID)
		for len(h.order) > h.limit {
			oldest := h.order[0]
			h.order = h.order[1:]
			delete(h.items, oldest)
		}
	}
	h.items[action.ID] = &historyEntry{action: action, result: result}
}

func (h *executionHistory) get(actionID string) (*historyEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.items[actionID]
	return entry, ok
}

// markRolledBack flips the entry and its result out of rollback
// eligibility. Returns false when the id is unknown.
func (h *executionHistory) markRolledBack(actionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.items[actionID]
	if !ok {
		return false
	}
	entry.rolledBack = true
	entry.result.RollbackAvailable = false
	return true
}

// disableRollback clears eligibility without marking the action as
// rolled back, used when the snapshot retention lapses.
func (h *executionHistory) disableRollback(actionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.items[actionID]; ok {
		entry.result.RollbackAvailable = false
	}
}

// recent returns up to n results, newest first.
func (h *executionHistory) recent(n int) []*models.ActionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.order) {
		n = len(h.order)
	}
	out := make([]*models.ActionResult, 0, n)
	for i := len(h.order) - 1; i >= 0 && len(out) < n; i-- {
		if entry, ok := h.items[h.order[i]]; ok {
			out = append(out, entry.result)
		}
	}
	return out
}
