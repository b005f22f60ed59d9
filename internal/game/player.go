package game

import (
	"context"
	"errors"

	"github.com/highroller-bot/highroller/internal/pkg/storage"
)

// Player is a registered participant.
type Player struct {
	ID           int64
	Username     string
	CurrentChips int
	TotalChips   int
	AbortedGames int
}

func playerFromRow(row *storage.PlayerRow) *Player {
	return &Player{
		ID:           row.ID,
		Username:     row.Username,
		CurrentChips: row.CurrentChips,
		TotalChips:   row.TotalChips,
		AbortedGames: row.AbortedGames,
	}
}

// Registry manages player identities and balances. AdjustChips is the single
// mutation primitive for chip movement; the engine routes every debit and
// credit through the same store operation, which is what makes the
// no-double-spend invariant checkable.
type Registry struct {
	store         storage.Store
	startingChips int
}

// NewRegistry creates a registry handing out startingChips on registration.
func NewRegistry(store storage.Store, startingChips int) *Registry {
	return &Registry{store: store, startingChips: startingChips}
}

// Register creates a player with the starting balance on both counters.
func (r *Registry) Register(ctx context.Context, id int64, username string) (*Player, error) {
	row := &storage.PlayerRow{
		ID:           id,
		Username:     username,
		CurrentChips: r.startingChips,
		TotalChips:   r.startingChips,
	}
	err := r.store.CreatePlayer(ctx, row)
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, ErrAlreadyRegistered
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return playerFromRow(row), nil
}

// ByID returns the player with the given id.
func (r *Registry) ByID(ctx context.Context, id int64) (*Player, error) {
	row, err := r.store.GetPlayer(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return playerFromRow(row), nil
}

// ByUsername returns the player registered under the given chat username.
func (r *Registry) ByUsername(ctx context.Context, username string) (*Player, error) {
	row, err := r.store.GetPlayerByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return playerFromRow(row), nil
}

// AdjustChips applies delta to both chip counters atomically.
func (r *Registry) AdjustChips(ctx context.Context, id int64, delta int) error {
	err := r.store.AdjustChips(ctx, id, delta)
	switch {
	case errors.Is(err, storage.ErrNegativeBalance):
		return ErrNegativeBalance
	case errors.Is(err, storage.ErrNotFound):
		return ErrPlayerNotFound
	default:
		return storeErr(err)
	}
}

// Winrate returns how many accepted, non-aborted games the player won and
// played in total.
func (r *Registry) Winrate(ctx context.Context, id int64) (wins, played int, err error) {
	wins, played, err = r.store.Winrate(ctx, id)
	if err != nil {
		return 0, 0, storeErr(err)
	}
	return wins, played, nil
}

// TopBySeason returns the top players by current (season) chips, descending.
func (r *Registry) TopBySeason(ctx context.Context, limit int) ([]*Player, error) {
	rows, err := r.store.TopPlayersByCurrentChips(ctx, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return playersFromRows(rows), nil
}

// TopAllTime returns the top players by lifetime chips, descending.
func (r *Registry) TopAllTime(ctx context.Context, limit int) ([]*Player, error) {
	rows, err := r.store.TopPlayersByTotalChips(ctx, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return playersFromRows(rows), nil
}

// GiveAll grants every registered player the given amount. This is an admin
// source of chips and intentionally sits outside the escrow invariant.
func (r *Registry) GiveAll(ctx context.Context, amount int) error {
	return storeErr(r.store.GiveAllPlayersChips(ctx, amount))
}

// ResetSeason puts everyone's current chips back to the starting balance.
// Total chips are untouched; that counter never resets.
func (r *Registry) ResetSeason(ctx context.Context) error {
	return storeErr(r.store.ResetAllCurrentChips(ctx, r.startingChips))
}

func playersFromRows(rows []storage.PlayerRow) []*Player {
	out := make([]*Player, len(rows))
	for i := range rows {
		out[i] = playerFromRow(&rows[i])
	}
	return out
}
