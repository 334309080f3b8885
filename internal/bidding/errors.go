package bidding

import "errors"

// Validation and concurrency errors surfaced to the acting user. Handlers
// convert these to rejection messages; none of them leaves partial state
// behind.
var (
	ErrSessionNotFound    = errors.New("bidding session not found")
	ErrSessionActive      = errors.New("recruit already has an active bidding session")
	ErrSessionExpired     = errors.New("bidding deadline has passed")
	ErrInvalidIncrement   = errors.New("bid must be a non-negative multiple of 0.5")
	ErrInsufficientPoints = errors.New("bid exceeds the clan's available points")
	ErrDuplicateBid       = errors.New("clan already has an open bid, remove it first")
	ErrNoBid              = errors.New("clan has no open bid to remove")
	ErrNotAuthorized      = errors.New("user does not lead this clan")
	ErrNotConfirmed       = errors.New("removal requires the confirmation token")
)
