package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("storage: not found")

// ErrNegativeBalance is returned by AdjustChips when the delta would push a
// player's current chips below zero. The row is left unchanged.
var ErrNegativeBalance = errors.New("storage: balance would go negative")

// ErrDuplicate is returned by CreatePlayer when the player id already exists.
var ErrDuplicate = errors.New("storage: row already exists")

// PlayerRow is the persisted form of a player.
type PlayerRow struct {
	ID           int64
	Username     string
	CurrentChips int
	TotalChips   int
	AbortedGames int
}

// ChallengeRow is the persisted form of a challenge.
type ChallengeRow struct {
	ID          int64
	ExternalRef *int64
	Bet         int
	AuthorID    int64
	AcceptedBy  *int64
	State       string
	TimeoutAt   time.Time
	Map         string
	Tribe       string
	Notes       string
	GameName    *string
	Winner      *int64
	Private     bool
}

// Ops is the set of row operations shared by the plain store handle and a
// transaction handle. Mutations issued through a transaction handle are
// committed or rolled back together; mutations issued through the plain
// handle auto-commit one by one.
type Ops interface {
	CreatePlayer(ctx context.Context, row *PlayerRow) error
	GetPlayer(ctx context.Context, id int64) (*PlayerRow, error)
	GetPlayerByUsername(ctx context.Context, username string) (*PlayerRow, error)

	// AdjustChips applies delta to both chip counters in one conditional
	// update. ErrNegativeBalance if current chips would drop below zero.
	AdjustChips(ctx context.Context, id int64, delta int) error
	IncrementAbortedCounter(ctx context.Context, id int64) error
	GiveAllPlayersChips(ctx context.Context, amount int) error
	ResetAllCurrentChips(ctx context.Context, amount int) error

	TopPlayersByCurrentChips(ctx context.Context, limit int) ([]PlayerRow, error)
	TopPlayersByTotalChips(ctx context.Context, limit int) ([]PlayerRow, error)

	// Winrate returns (wins, played) for a player. Played counts challenges
	// the player takes part in that got past creation and were not aborted.
	Winrate(ctx context.Context, id int64) (wins, played int, err error)

	AllocateChallengeID(ctx context.Context) (int64, error)
	CreateChallenge(ctx context.Context, row *ChallengeRow) error
	GetChallenge(ctx context.Context, id int64) (*ChallengeRow, error)
	GetChallengeByExternalRef(ctx context.Context, ref int64) (*ChallengeRow, error)
	ListChallengesByState(ctx context.Context, state string) ([]ChallengeRow, error)
	ListTimedOutChallenges(ctx context.Context, state string, now time.Time) ([]ChallengeRow, error)

	SetChallengeState(ctx context.Context, id int64, state string) error
	SetChallengeAcceptedBy(ctx context.Context, id, playerID int64) error
	SetChallengeGameName(ctx context.Context, id int64, name string) error
	SetChallengeWinner(ctx context.Context, id, playerID int64) error
	SetChallengeExternalRef(ctx context.Context, id, ref int64) error
}

// Store is the ledger storage boundary. WithTx runs fn as a single atomic
// read-modify-write unit: inside fn, GetPlayer and GetChallenge take row
// locks, so two transactions touching the same row serialize. This is what
// keeps escrow consistent when an abort races a start on the same challenge.
type Store interface {
	Ops
	WithTx(ctx context.Context, fn func(tx Ops) error) error
	Close() error
}
