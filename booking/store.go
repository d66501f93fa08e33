package booking

import "context"

// TicketStore persists ticket documents. Getters return (nil, nil) for a
// missing id.
type TicketStore interface {
	SaveTicket(ctx context.Context, t Ticket) error
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	FindTicketsByReference(ctx context.Context, reference string) ([]Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, int, error)
}

// GroupStore persists group booking documents of every kind.
type GroupStore interface {
	SaveGroup(ctx context.Context, g GroupBooking) error
	GetGroup(ctx context.Context, id string) (*GroupBooking, error)
	ListGroups(ctx context.Context, filter GroupFilter) ([]GroupBooking, int, error)
}

// Transactor runs fn so that every store call made with the context it
// receives commits or rolls back together.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTransactor runs fn without a transaction.
type NopTransactor struct{}

func (NopTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// AgencyStore persists agencies. It also serves ledger.AgencyDirectory.
type AgencyStore interface {
	SaveAgency(ctx context.Context, a Agency) error
	ListAgencies(ctx context.Context) ([]Agency, error)
	AgencyName(ctx context.Context, agencyID string) (string, error)
}
