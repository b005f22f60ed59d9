package game

import "errors"

// Error taxonomy of the ledger core. Every failed operation surfaces one of
// these, wrapped with context where useful; messages are shown to players
// verbatim, so they are phrased as chat replies.
var (
	ErrNotRegistered     = errors.New("you are not registered! Use the \"register\" command first")
	ErrAlreadyRegistered = errors.New("you are already registered!")

	ErrInsufficientFunds = errors.New("you don't have enough chips")
	ErrNegativeBalance   = errors.New("you can't have negative chips!")

	ErrIllegalTransition = errors.New("the game is not in the right state for that")
	ErrAlreadyAccepted   = errors.New("challenge has already been accepted!")

	ErrNotAParticipant = errors.New("you are not part of this game!")
	ErrNotHost         = errors.New("you can't start a game you're not hosting!")

	ErrChallengeNotFound = errors.New("the game doesn't exist!")
	ErrPlayerNotFound    = errors.New("selected player doesn't exist!")

	ErrInvalidArgumentValue = errors.New("invalid argument value")

	// ErrStorageUnavailable wraps I/O failures below the core. The core never
	// retries; the calling layer decides whether to re-run the whole command.
	ErrStorageUnavailable = errors.New("storage unavailable, try again later")
)
