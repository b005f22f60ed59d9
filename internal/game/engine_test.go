package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/highroller-bot/highroller/internal/pkg/storage"
)

const startingChips = 10

func newTestLedger(t *testing.T) (*Engine, *Registry, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewEngine(store), NewRegistry(store, startingChips), store
}

func mustRegister(t *testing.T, registry *Registry, id int64, name string) *Player {
	t.Helper()
	player, err := registry.Register(context.Background(), id, name)
	require.NoError(t, err)
	return player
}

func chips(t *testing.T, registry *Registry, id int64) (current, total int) {
	t.Helper()
	player, err := registry.ByID(context.Background(), id)
	require.NoError(t, err)
	return player.CurrentChips, player.TotalChips
}

func createChallenge(t *testing.T, engine *Engine, authorID int64, bet int) *Challenge {
	t.Helper()
	draft, err := engine.Precreate(context.Background(), bet, authorID, "small drylands", "Bardur", time.Hour, "", false)
	require.NoError(t, err)
	ch, err := engine.FinishCreate(context.Background(), draft, nil)
	require.NoError(t, err)
	return ch
}

func TestPrecreateGuards(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := engine.Precreate(ctx, 5, 1, "small drylands", "Bardur", time.Hour, "", false)
	assert.ErrorIs(t, err, ErrNotRegistered)

	mustRegister(t, registry, 1, "alice")

	_, err = engine.Precreate(ctx, startingChips+1, 1, "small drylands", "Bardur", time.Hour, "", false)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = engine.Precreate(ctx, 0, 1, "small drylands", "Bardur", time.Hour, "", false)
	assert.ErrorIs(t, err, ErrInvalidArgumentValue)

	// Validation alone must not move chips.
	current, total := chips(t, registry, 1)
	assert.Equal(t, startingChips, current)
	assert.Equal(t, startingChips, total)
}

func TestFinishCreateDebitsAuthorOnce(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")

	draft, err := engine.Precreate(ctx, 4, 1, "small drylands", "Bardur", time.Hour, "", false)
	require.NoError(t, err)

	ch, err := engine.FinishCreate(ctx, draft, nil)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, ch.State)

	current, _ := chips(t, registry, 1)
	assert.Equal(t, startingChips-4, current)

	// A committed draft cannot be committed again.
	_, err = engine.FinishCreate(ctx, draft, nil)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	current, _ = chips(t, registry, 1)
	assert.Equal(t, startingChips-4, current)
}

func TestFullLifecycle(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	ch := createChallenge(t, engine, 1, 5)
	current, _ := chips(t, registry, 1)
	assert.Equal(t, 5, current)

	ch, err := engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, ch.State)
	current, _ = chips(t, registry, 2)
	assert.Equal(t, 5, current)

	ch, err = engine.Start(ctx, ch.ID, 1, "G1")
	require.NoError(t, err)
	assert.Equal(t, StateStarted, ch.State)
	require.NotNil(t, ch.GameName)
	assert.Equal(t, "G1", *ch.GameName)

	ch, err = engine.ClaimVictory(ctx, ch.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, ch.State)
	require.NotNil(t, ch.Winner)
	assert.Equal(t, int64(2), *ch.Winner)

	aliceChips, _ := chips(t, registry, 1)
	bobChips, _ := chips(t, registry, 2)
	assert.Equal(t, 5, aliceChips)
	assert.Equal(t, 15, bobChips)
}

func TestAcceptGuards(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	ch := createChallenge(t, engine, 1, 5)

	_, err := engine.Accept(ctx, ch.ID+100, 2)
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	_, err = engine.Accept(ctx, ch.ID, 3)
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)

	// Second accept fails and debits nothing.
	_, err = engine.Accept(ctx, ch.ID, 2)
	assert.ErrorIs(t, err, ErrAlreadyAccepted)
	current, _ := chips(t, registry, 2)
	assert.Equal(t, 5, current)
}

func TestAcceptInsufficientFunds(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")
	require.NoError(t, registry.AdjustChips(ctx, 2, -8))

	ch := createChallenge(t, engine, 1, 5)
	_, err := engine.Accept(ctx, ch.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	got, err := engine.ChallengeByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, got.State)
	assert.Nil(t, got.AcceptedBy)
}

func TestStartGuards(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	ch := createChallenge(t, engine, 1, 5)

	// A challenge can't skip straight from created to started.
	_, err := engine.Start(ctx, ch.ID, 1, "G1")
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)

	_, err = engine.Start(ctx, ch.ID, 2, "G1")
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = engine.Start(ctx, ch.ID, 1, "G1")
	require.NoError(t, err)
}

func TestClaimVictoryGuards(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")
	mustRegister(t, registry, 3, "carol")

	ch := createChallenge(t, engine, 1, 5)
	_, err := engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)

	// Membership is checked even for admin corrections.
	_, err = engine.ForceWin(ctx, ch.ID, 3)
	assert.ErrorIs(t, err, ErrNotAParticipant)

	// Before started, only the forced path passes the state check.
	_, err = engine.ClaimVictory(ctx, ch.ID, 2)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	won, err := engine.ForceWin(ctx, ch.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, won.State)
	current, _ := chips(t, registry, 2)
	assert.Equal(t, 15, current)
}

func TestAbortRoundTripRefundsEveryone(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	ch := createChallenge(t, engine, 1, 10)
	_, err := engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)

	aborted, err := engine.Abort(ctx, ch.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, aborted.State)

	// Refund, not profit or loss: both counters are back where they started.
	for _, id := range []int64{1, 2} {
		current, total := chips(t, registry, id)
		assert.Equal(t, startingChips, current)
		assert.Equal(t, startingChips, total)
	}

	// The player who walked away from an accepted game gets the penalty.
	bob, err := registry.ByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, bob.AbortedGames)
	alice, err := registry.ByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, alice.AbortedGames)
}

func TestAbortGuards(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")
	mustRegister(t, registry, 3, "carol")

	ch := createChallenge(t, engine, 1, 5)

	_, err := engine.Abort(ctx, ch.ID, 3)
	assert.ErrorIs(t, err, ErrNotAParticipant)

	_, err = engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)
	_, err = engine.Start(ctx, ch.ID, 1, "G1")
	require.NoError(t, err)

	// Started games are past the point of no return for participants.
	_, err = engine.Abort(ctx, ch.ID, 1)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestSystemAbortDoesNotPenalize(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")

	ch := createChallenge(t, engine, 1, 5)

	aborted, err := engine.Abort(ctx, ch.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, aborted.State)

	alice, err := registry.ByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, startingChips, alice.CurrentChips)
	assert.Equal(t, 0, alice.AbortedGames)
}

func TestForceWinMovesPayoutOnce(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	ch := createChallenge(t, engine, 1, 5)
	_, err := engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)
	_, err = engine.Start(ctx, ch.ID, 1, "G1")
	require.NoError(t, err)
	_, err = engine.ClaimVictory(ctx, ch.ID, 2)
	require.NoError(t, err)

	// Handing the win to the other participant takes the payout back from
	// the previous winner in the same step.
	won, err := engine.ForceWin(ctx, ch.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), *won.Winner)

	aliceChips, _ := chips(t, registry, 1)
	bobChips, _ := chips(t, registry, 2)
	assert.Equal(t, 15, aliceChips)
	assert.Equal(t, 5, bobChips)
}

func TestForceWinFailsWhenPayoutSpent(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	ch := createChallenge(t, engine, 1, 5)
	_, err := engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)
	_, err = engine.Start(ctx, ch.ID, 1, "G1")
	require.NoError(t, err)
	_, err = engine.ClaimVictory(ctx, ch.ID, 2)
	require.NoError(t, err)

	// Bob spends the winnings; the payout can no longer be taken back.
	require.NoError(t, registry.AdjustChips(ctx, 2, -8))

	_, err = engine.ForceWin(ctx, ch.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// The failed correction changed nothing.
	got, err := engine.ChallengeByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, got.State)
	assert.Equal(t, int64(2), *got.Winner)
	aliceChips, _ := chips(t, registry, 1)
	bobChips, _ := chips(t, registry, 2)
	assert.Equal(t, 5, aliceChips)
	assert.Equal(t, 7, bobChips)
}

func TestForceAbortAcceptedChallengePenalizesNobody(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	ch := createChallenge(t, engine, 1, 5)
	_, err := engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)

	// An admin correcting an accepted challenge need not be a registered
	// player; the abort still refunds everyone and bumps no counters.
	aborted, err := engine.ForceAbort(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, aborted.State)

	for _, id := range []int64{1, 2} {
		player, err := registry.ByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, startingChips, player.CurrentChips)
		assert.Equal(t, 0, player.AbortedGames)
	}
}

func TestForceAbortUndoesPayout(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	ch := createChallenge(t, engine, 1, 5)
	_, err := engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)
	_, err = engine.Start(ctx, ch.ID, 1, "G1")
	require.NoError(t, err)
	_, err = engine.ClaimVictory(ctx, ch.ID, 2)
	require.NoError(t, err)

	aborted, err := engine.ForceAbort(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, aborted.State)

	// Claw-back plus refunds net out to the starting balances.
	for _, id := range []int64{1, 2} {
		current, total := chips(t, registry, id)
		assert.Equal(t, startingChips, current)
		assert.Equal(t, startingChips, total)
	}
}

func TestTimedOutListsOnlyExpiredCreated(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")

	draft, err := engine.Precreate(ctx, 2, 1, "small drylands", "Bardur", -time.Minute, "", false)
	require.NoError(t, err)
	expired, err := engine.FinishCreate(ctx, draft, nil)
	require.NoError(t, err)

	fresh := createChallenge(t, engine, 1, 2)

	timedOut, err := engine.TimedOut(ctx)
	require.NoError(t, err)
	require.Len(t, timedOut, 1)
	assert.Equal(t, expired.ID, timedOut[0].ID)
	assert.NotEqual(t, fresh.ID, timedOut[0].ID)
}

func TestSweepAbortsAndRefunds(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")

	draft, err := engine.Precreate(ctx, 3, 1, "small drylands", "Bardur", -time.Minute, "", false)
	require.NoError(t, err)
	ch, err := engine.FinishCreate(ctx, draft, nil)
	require.NoError(t, err)

	NewSweeper(engine, NopNotifier{}, time.Minute).Sweep(ctx)

	got, err := engine.ChallengeByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, got.State)

	alice, err := registry.ByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, startingChips, alice.CurrentChips)
	assert.Equal(t, 0, alice.AbortedGames)
}

func TestConcurrentAcceptDebitsOnce(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")
	mustRegister(t, registry, 3, "carol")

	ch := createChallenge(t, engine, 1, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, playerID := range []int64{2, 3} {
		wg.Add(1)
		go func(i int, playerID int64) {
			defer wg.Done()
			_, errs[i] = engine.Accept(ctx, ch.ID, playerID)
		}(i, playerID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyAccepted)
		}
	}
	assert.Equal(t, 1, succeeded)

	// Exactly one acceptor paid.
	bobChips, _ := chips(t, registry, 2)
	carolChips, _ := chips(t, registry, 3)
	assert.Equal(t, startingChips-5, bobChips+carolChips-startingChips)
}

func TestChipConservation(t *testing.T) {
	engine, registry, store := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")
	mustRegister(t, registry, 2, "bob")

	total := func() int {
		sum := 0
		rows, err := store.TopPlayersByCurrentChips(ctx, 100)
		require.NoError(t, err)
		for _, row := range rows {
			sum += row.CurrentChips
		}
		for _, state := range []State{StateCreated, StateAccepted, StateStarted} {
			challenges, err := engine.ChallengesByState(ctx, state)
			require.NoError(t, err)
			for _, ch := range challenges {
				sum += ch.Bet
				if ch.AcceptedBy != nil {
					sum += ch.Bet
				}
			}
		}
		return sum
	}

	want := 2 * startingChips
	assert.Equal(t, want, total())

	ch := createChallenge(t, engine, 1, 5)
	assert.Equal(t, want, total())

	_, err := engine.Accept(ctx, ch.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, want, total())

	_, err = engine.Start(ctx, ch.ID, 1, "G1")
	require.NoError(t, err)
	assert.Equal(t, want, total())

	_, err = engine.ClaimVictory(ctx, ch.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, want, total())
}

func TestChallengeByExternalRef(t *testing.T) {
	engine, registry, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, registry, 1, "alice")

	draft, err := engine.Precreate(ctx, 2, 1, "small drylands", "Bardur", time.Hour, "", false)
	require.NoError(t, err)
	ref := int64(987654)
	ch, err := engine.FinishCreate(ctx, draft, &ref)
	require.NoError(t, err)

	got, err := engine.ChallengeByExternalRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ch.ID, got.ID)

	_, err = engine.ChallengeByExternalRef(ctx, ref+1)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
