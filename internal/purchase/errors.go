package purchase

import "errors"

var (
	// ErrCooldown means a purchase for the same product was initiated too
	// recently; the tap is suppressed, not queued.
	ErrCooldown = errors.New("purchase: product is on cooldown")

	// ErrInitInProgress means an initialization handshake is already running.
	ErrInitInProgress = errors.New("purchase: initialization already in progress")
)
