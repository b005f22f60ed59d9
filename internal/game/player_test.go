package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/highroller-bot/highroller/internal/pkg/storage"
)

func TestRegister(t *testing.T) {
	_, registry, _ := newTestLedger(t)
	ctx := context.Background()

	player, err := registry.Register(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, startingChips, player.CurrentChips)
	assert.Equal(t, startingChips, player.TotalChips)
	assert.Equal(t, 0, player.AbortedGames)

	_, err = registry.Register(ctx, 1, "alice")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestLookup(t *testing.T) {
	_, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")

	byID, err := registry.ByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byName, err := registry.ByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), byName.ID)

	_, err = registry.ByID(ctx, 2)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	_, err = registry.ByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestAdjustChips(t *testing.T) {
	_, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")

	require.NoError(t, registry.AdjustChips(ctx, 1, 5))
	current, total := chips(t, registry, 1)
	assert.Equal(t, startingChips+5, current)
	assert.Equal(t, startingChips+5, total)

	err := registry.AdjustChips(ctx, 1, -(startingChips + 6))
	assert.ErrorIs(t, err, ErrNegativeBalance)
	current, _ = chips(t, registry, 1)
	assert.Equal(t, startingChips+5, current)

	err = registry.AdjustChips(ctx, 99, 1)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestWinrateCountsOnlyAcceptedGames(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	playGame := func(winnerID int64) {
		ch := createChallenge(t, engine, 1, 1)
		_, err := engine.Accept(ctx, ch.ID, 2)
		require.NoError(t, err)
		_, err = engine.Start(ctx, ch.ID, 1, "G")
		require.NoError(t, err)
		_, err = engine.ClaimVictory(ctx, ch.ID, winnerID)
		require.NoError(t, err)
	}

	playGame(2)
	playGame(1)

	// An unanswered challenge and an aborted one count for nobody.
	createChallenge(t, engine, 1, 1)
	aborted := createChallenge(t, engine, 1, 1)
	_, err := engine.Accept(ctx, aborted.ID, 2)
	require.NoError(t, err)
	_, err = engine.Abort(ctx, aborted.ID, 2)
	require.NoError(t, err)

	wins, played, err := registry.Winrate(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, played)

	wins, played, err = registry.Winrate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, played)
}

func TestLeaderboards(t *testing.T) {
	_, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 3, "carol")
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	require.NoError(t, registry.AdjustChips(ctx, 2, 7))

	top, err := registry.TopBySeason(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, int64(2), top[0].ID)
	// Equal balances order by id.
	assert.Equal(t, int64(1), top[1].ID)
	assert.Equal(t, int64(3), top[2].ID)

	top, err = registry.TopBySeason(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestGiveAllAndResetSeason(t *testing.T) {
	_, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	require.NoError(t, registry.GiveAll(ctx, 3))
	for _, id := range []int64{1, 2} {
		current, total := chips(t, registry, id)
		assert.Equal(t, startingChips+3, current)
		assert.Equal(t, startingChips+3, total)
	}

	require.NoError(t, registry.ResetSeason(ctx))
	for _, id := range []int64{1, 2} {
		current, total := chips(t, registry, id)
		assert.Equal(t, startingChips, current)
		assert.Equal(t, startingChips+3, total)
	}
}

func TestEngineNowIsInjectable(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := NewEngine(store)
	registry := NewRegistry(store, startingChips)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	draft, err := engine.Precreate(ctx, 1, 1, "small drylands", "Bardur", 2*time.Hour, "", false)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(2*time.Hour), draft.TimeoutAt())

	ch, err := engine.FinishCreate(ctx, draft, nil)
	require.NoError(t, err)

	// Not yet expired at the frozen instant.
	timedOut, err := engine.TimedOut(ctx)
	require.NoError(t, err)
	assert.Empty(t, timedOut)

	engine.now = func() time.Time { return fixed.Add(3 * time.Hour) }
	timedOut, err = engine.TimedOut(ctx)
	require.NoError(t, err)
	require.Len(t, timedOut, 1)
	assert.Equal(t, ch.ID, timedOut[0].ID)
}
