// Package opportunity owns the shared-ride opportunity lifecycle.
package opportunity

import (
	"errors"
	"time"

	"github.com/example/shared-ride/internal/models"
)

var (
	ErrNotFound = errors.New("opportunity not found")
	// ErrUnavailable means the ride can no longer be joined or changed: it is full,
	// expired, cancelled, or a concurrent writer got there first.
	ErrUnavailable    = errors.New("opportunity no longer available")
	ErrConflict       = errors.New("opportunity state conflict")
	ErrNotInitiator   = errors.New("only the initiator can cancel the opportunity")
	ErrOwnOpportunity = errors.New("initiator cannot join their own opportunity")
)

const (
	DefaultTTL           = 5 * time.Minute
	DefaultMaxPassengers = 4

	discountStep = 10
	maxDiscount  = 40
)

// AllowedTransitions is the opportunity state flow as code. Accepting a rider without
// filling the ride keeps the opportunity open and is not a transition.
var AllowedTransitions = map[models.OpportunityStatus][]models.OpportunityStatus{
	models.StatusOpen:    {models.StatusMatched, models.StatusExpired, models.StatusCancelled},
	models.StatusMatched: {models.StatusOpen, models.StatusCancelled},
}

func CanTransition(from, to models.OpportunityStatus) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Discount is the potential discount for an opportunity with matched riders besides the
// initiator: 10% per passenger, capped at 40%.
func Discount(matchedRiders int) int {
	d := (matchedRiders + 1) * discountStep
	if d > maxDiscount {
		return maxDiscount
	}
	return d
}

// CreateCommand carries what is needed to open an opportunity for a new ride.
type CreateCommand struct {
	InitiatorID        string
	InitiatorName      string
	Origin             models.Coordinate
	Destination        models.Coordinate
	OriginAddress      string
	DestinationAddress string
	Price              float64
	Path               *models.PathResult
	MaxPassengers      int
}
