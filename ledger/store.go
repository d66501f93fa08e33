/*
store.go - Persistence interface for ledger entries

PURPOSE:
  Defines the boundary between ledger operations and the database.
  Implementations live in store/memory (tests, dev) and store/sqlite.

CONTRACT:
  - Lookups by (booking, slot) return (nil, nil) when nothing matches.
  - When several rows share a slot, FindSlot returns the most recent one.
  - Writes never validate business rules; that is Ledger's job.

SEE ALSO:
  - ledger.go: Operations built on Store
*/
package ledger

import "context"

// Store handles persistence of ledger entries.
type Store interface {
	// Insert persists a new entry. The ID is assigned by the caller.
	Insert(ctx context.Context, tx Transaction) error

	// Get returns the entry with the given id, or nil.
	Get(ctx context.Context, id TransactionID) (*Transaction, error)

	// FindSlot returns the newest entry at (ref, slot), or nil.
	FindSlot(ctx context.Context, ref BookingRef, slot Slot) (*Transaction, error)

	// UpdateSlot applies patch to the newest entry at (ref, slot) and
	// returns the updated entry, or nil when the slot is empty.
	UpdateSlot(ctx context.Context, ref BookingRef, slot Slot, patch Patch) (*Transaction, error)

	// DeleteSlot removes every entry at (ref, slot). Reports whether any existed.
	DeleteSlot(ctx context.Context, ref BookingRef, slot Slot) (bool, error)

	// DeleteBooking removes every entry of the booking and returns the count.
	DeleteBooking(ctx context.Context, ref BookingRef) (int, error)

	// Query returns entries matching filter, newest first.
	Query(ctx context.Context, filter Filter) ([]Transaction, error)
}

// AgencyDirectory resolves agency display names for descriptions.
type AgencyDirectory interface {
	AgencyName(ctx context.Context, agencyID string) (string, error)
}
