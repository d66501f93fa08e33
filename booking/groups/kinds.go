package groups

import (
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/ledger"
)

// KindSpec describes what a group booking kind supports. The three kinds
// share one service and differ only in these switches.
type KindSpec struct {
	Kind      ledger.BookingKind
	UIDPrefix string
	Noun      string

	// Buses enables bus assignment and the per-bus traveler listing.
	Buses bool
	// Rooms enables room assignment.
	Rooms bool
	// Reservation enables the hotel reservation status.
	Reservation bool

	// Locations returns the places the passport rule is checked against.
	Locations func(g *booking.GroupBooking) []string
}

var (
	Event = KindSpec{
		Kind:      ledger.KindEvent,
		UIDPrefix: "E",
		Noun:      "Event",
		Buses:     true,
		Rooms:     true,
		Locations: func(g *booking.GroupBooking) []string {
			return []string{g.Location, g.DepartureCity, g.ArrivalCity}
		},
	}

	OrganizedTravel = KindSpec{
		Kind:      ledger.KindOrganizedTravel,
		UIDPrefix: "OT",
		Noun:      "Organized travel",
		Buses:     true,
		Locations: func(g *booking.GroupBooking) []string {
			return []string{g.DepartureCity, g.ArrivalCity, g.Location}
		},
	}

	HotelReservation = KindSpec{
		Kind:        ledger.KindHotelReservation,
		UIDPrefix:   "H",
		Noun:        "Hotel reservation",
		Rooms:       true,
		Reservation: true,
		Locations: func(g *booking.GroupBooking) []string {
			return []string{g.Location, g.HotelName}
		},
	}
)

// Kinds lists every group booking kind.
var Kinds = []KindSpec{Event, OrganizedTravel, HotelReservation}
