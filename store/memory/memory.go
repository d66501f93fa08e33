// Package memory provides an in-memory implementation of every store
// interface (ledger, tickets, group bookings, agencies). Used by tests and
// local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu       sync.RWMutex
	txs      []ledger.Transaction
	tickets  map[string]booking.Ticket
	groups   map[string]booking.GroupBooking
	agencies map[string]booking.Agency

	// txMu serializes InTx callers.
	txMu sync.Mutex
}

func New() *Store {
	return &Store{
		tickets:  make(map[string]booking.Ticket),
		groups:   make(map[string]booking.GroupBooking),
		agencies: make(map[string]booking.Agency),
	}
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

func (m *Store) Insert(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return nil
}

func (m *Store) Get(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.txs {
		if m.txs[i].ID == id {
			tx := m.txs[i]
			return &tx, nil
		}
	}
	return nil, nil
}

// findLocked returns the index of the newest entry at (ref, slot), or -1.
func (m *Store) findLocked(ref ledger.BookingRef, slot ledger.Slot) int {
	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].Ref == ref && m.txs[i].Slot == slot {
			return i
		}
	}
	return -1
}

func (m *Store) FindSlot(_ context.Context, ref ledger.BookingRef, slot ledger.Slot) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.findLocked(ref, slot)
	if i < 0 {
		return nil, nil
	}
	tx := m.txs[i]
	return &tx, nil
}

func (m *Store) UpdateSlot(_ context.Context, ref ledger.BookingRef, slot ledger.Slot, patch ledger.Patch) (*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.findLocked(ref, slot)
	if i < 0 {
		return nil, nil
	}
	patch.Apply(&m.txs[i])
	tx := m.txs[i]
	return &tx, nil
}

func (m *Store) DeleteSlot(_ context.Context, ref ledger.BookingRef, slot ledger.Slot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.removeLocked(func(tx ledger.Transaction) bool { return tx.Ref == ref && tx.Slot == slot })
	return n > 0, nil
}

func (m *Store) DeleteBooking(_ context.Context, ref ledger.BookingRef) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(func(tx ledger.Transaction) bool { return tx.Ref == ref }), nil
}

func (m *Store) removeLocked(match func(ledger.Transaction) bool) int {
	kept := m.txs[:0]
	removed := 0
	for _, tx := range m.txs {
		if match(tx) {
			removed++
			continue
		}
		kept = append(kept, tx)
	}
	m.txs = kept
	return removed
}

func (m *Store) Query(_ context.Context, filter ledger.Filter) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []ledger.Transaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		if filter.Matches(m.txs[i]) {
			result = append(result, m.txs[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// =============================================================================
// TICKET STORE (booking.TicketStore interface)
// =============================================================================

func (m *Store) SaveTicket(_ context.Context, t booking.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t.Clone()
	return nil
}

func (m *Store) GetTicket(_ context.Context, id string) (*booking.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, nil
	}
	c := t.Clone()
	return &c, nil
}

func (m *Store) FindTicketsByReference(_ context.Context, reference string) ([]booking.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []booking.Ticket
	for _, t := range m.tickets {
		if t.Deleted {
			continue
		}
		if t.BookingReference == reference || t.OriginalBookingReference == reference {
			result = append(result, t.Clone())
		}
	}
	sortTickets(result)
	return result, nil
}

func (m *Store) ListTickets(_ context.Context, filter booking.TicketFilter) ([]booking.Ticket, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []booking.Ticket
	for _, t := range m.tickets {
		if filter.MatchesTicket(&t) {
			all = append(all, t.Clone())
		}
	}
	sortTickets(all)
	start, end := booking.Page(len(all), filter.Offset, filter.Limit)
	return all[start:end], len(all), nil
}

func sortTickets(ts []booking.Ticket) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID < ts[j].ID
		}
		return ts[i].CreatedAt.After(ts[j].CreatedAt)
	})
}

// =============================================================================
// GROUP STORE (booking.GroupStore interface)
// =============================================================================

func (m *Store) SaveGroup(_ context.Context, g booking.GroupBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g.Clone()
	return nil
}

func (m *Store) GetGroup(_ context.Context, id string) (*booking.GroupBooking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, nil
	}
	c := g.Clone()
	return &c, nil
}

func (m *Store) ListGroups(_ context.Context, filter booking.GroupFilter) ([]booking.GroupBooking, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []booking.GroupBooking
	for _, g := range m.groups {
		if filter.MatchesGroup(&g) {
			all = append(all, g.Clone())
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	start, end := booking.Page(len(all), filter.Offset, filter.Limit)
	return all[start:end], len(all), nil
}

// =============================================================================
// AGENCY STORE (booking.AgencyStore, ledger.AgencyDirectory)
// =============================================================================

func (m *Store) SaveAgency(_ context.Context, a booking.Agency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agencies[a.ID] = a
	return nil
}

func (m *Store) ListAgencies(_ context.Context) ([]booking.Agency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]booking.Agency, 0, len(m.agencies))
	for _, a := range m.agencies {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// AgencyName returns "" when the agency is unknown.
func (m *Store) AgencyName(_ context.Context, agencyID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agencies[agencyID].Name, nil
}

// =============================================================================
// TRANSACTIONS (booking.Transactor interface)
// =============================================================================

type txKey struct{}

// InTx runs fn and restores the previous state if it fails.
// Writes made outside InTx while fn runs are lost on rollback.
func (m *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	txs      []ledger.Transaction
	tickets  map[string]booking.Ticket
	groups   map[string]booking.GroupBooking
	agencies map[string]booking.Agency
}

func (m *Store) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := memorySnapshot{
		txs:      append([]ledger.Transaction(nil), m.txs...),
		tickets:  make(map[string]booking.Ticket, len(m.tickets)),
		groups:   make(map[string]booking.GroupBooking, len(m.groups)),
		agencies: make(map[string]booking.Agency, len(m.agencies)),
	}
	for k, v := range m.tickets {
		s.tickets[k] = v
	}
	for k, v := range m.groups {
		s.groups[k] = v
	}
	for k, v := range m.agencies {
		s.agencies[k] = v
	}
	return s
}

func (m *Store) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = s.txs
	m.tickets = s.tickets
	m.groups = s.groups
	m.agencies = s.agencies
}

// Reset drops all data.
func (m *Store) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = nil
	m.tickets = make(map[string]booking.Ticket)
	m.groups = make(map[string]booking.GroupBooking)
	m.agencies = make(map[string]booking.Agency)
	return nil
}
