package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/highroller-bot/highroller/internal/pkg/storage"
)

// Engine owns the challenge lifecycle and every chip movement tied to it.
// Each transition runs inside a single store transaction, so a transition
// racing another on the same challenge observes the committed state and
// fails cleanly instead of double-spending or double-refunding.
type Engine struct {
	store storage.Store
	now   func() time.Time
}

// NewEngine creates an engine on top of the given ledger store.
func NewEngine(store storage.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// storeErr maps storage failures onto the user-facing taxonomy. Anything not
// recognized is an I/O problem and surfaces as StorageUnavailable.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrNegativeBalance),
		errors.Is(err, storage.ErrDuplicate):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
}

// Precreate validates that the author can afford the bet and reserves an id,
// without touching any balance. The returned draft must be committed with
// FinishCreate; the split lets the caller post the announcement message (an
// external I/O call) between validation and commit without holding a row
// lock across it.
func (e *Engine) Precreate(ctx context.Context, bet int, authorID int64, mapName, tribe string, lastsFor time.Duration, notes string, private bool) (*Draft, error) {
	if bet <= 0 {
		return nil, fmt.Errorf("%w: bet must be positive", ErrInvalidArgumentValue)
	}

	author, err := e.store.GetPlayer(ctx, authorID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if author.CurrentChips < bet {
		return nil, ErrInsufficientFunds
	}

	id, err := e.store.AllocateChallengeID(ctx)
	if err != nil {
		return nil, storeErr(err)
	}

	return &Draft{challenge: Challenge{
		ID:        id,
		Bet:       bet,
		AuthorID:  authorID,
		State:     StatePrecreated,
		TimeoutAt: e.now().Add(lastsFor),
		Map:       mapName,
		Tribe:     tribe,
		Notes:     notes,
		Private:   private,
	}}, nil
}

// FinishCreate commits a draft: debits the bet from the author and persists
// the row as created, atomically. externalRef links the challenge to the
// announcement message when there is one.
func (e *Engine) FinishCreate(ctx context.Context, draft *Draft, externalRef *int64) (*Challenge, error) {
	if draft == nil || draft.committed {
		return nil, fmt.Errorf("%w: challenge is already created", ErrIllegalTransition)
	}

	ch := draft.challenge
	ch.ExternalRef = externalRef
	ch.State = StateCreated

	err := e.store.WithTx(ctx, func(tx storage.Ops) error {
		if err := tx.AdjustChips(ctx, ch.AuthorID, -ch.Bet); err != nil {
			if errors.Is(err, storage.ErrNegativeBalance) {
				return ErrInsufficientFunds
			}
			return storeErr(err)
		}
		return storeErr(tx.CreateChallenge(ctx, ch.toRow()))
	})
	if err != nil {
		return nil, err
	}

	draft.committed = true
	return &ch, nil
}

// Accept stakes the acceptor's bet and moves the challenge to accepted.
func (e *Engine) Accept(ctx context.Context, challengeID, playerID int64) (*Challenge, error) {
	var out *Challenge
	err := e.store.WithTx(ctx, func(tx storage.Ops) error {
		ch, err := e.getChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		if ch.State != StateCreated {
			return ErrAlreadyAccepted
		}

		if _, err := tx.GetPlayer(ctx, playerID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrNotRegistered
			}
			return storeErr(err)
		}
		if err := tx.AdjustChips(ctx, playerID, -ch.Bet); err != nil {
			if errors.Is(err, storage.ErrNegativeBalance) {
				return ErrInsufficientFunds
			}
			return storeErr(err)
		}

		if err := tx.SetChallengeAcceptedBy(ctx, ch.ID, playerID); err != nil {
			return storeErr(err)
		}
		if err := tx.SetChallengeState(ctx, ch.ID, string(StateAccepted)); err != nil {
			return storeErr(err)
		}

		ch.AcceptedBy = &playerID
		ch.State = StateAccepted
		out = ch
		return nil
	})
	return out, err
}

// Start records the game name and moves the challenge to started. Only the
// author may start.
func (e *Engine) Start(ctx context.Context, challengeID, playerID int64, gameName string) (*Challenge, error) {
	var out *Challenge
	err := e.store.WithTx(ctx, func(tx storage.Ops) error {
		ch, err := e.getChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		if ch.AuthorID != playerID {
			return ErrNotHost
		}
		if ch.State != StateAccepted {
			return fmt.Errorf("%w: the game can't be started", ErrIllegalTransition)
		}

		if err := tx.SetChallengeGameName(ctx, ch.ID, gameName); err != nil {
			return storeErr(err)
		}
		if err := tx.SetChallengeState(ctx, ch.ID, string(StateStarted)); err != nil {
			return storeErr(err)
		}

		ch.GameName = &gameName
		ch.State = StateStarted
		out = ch
		return nil
	})
	return out, err
}

// ClaimVictory pays the whole escrow (twice the bet) to the winner and moves
// the challenge to finished. Only a participant of a started game may claim.
func (e *Engine) ClaimVictory(ctx context.Context, challengeID, winnerID int64) (*Challenge, error) {
	var out *Challenge
	err := e.store.WithTx(ctx, func(tx storage.Ops) error {
		ch, err := e.getChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		if err := e.claimTx(ctx, tx, ch, winnerID, false); err != nil {
			return err
		}
		out = ch
		return nil
	})
	return out, err
}

// ForceWin sets the winner of a challenge regardless of its state, taking
// back any previous payout first so the old winner is never paid twice. The
// whole correction is one transaction: either the claw-back and the new
// payout both commit, or neither does.
func (e *Engine) ForceWin(ctx context.Context, challengeID, winnerID int64) (*Challenge, error) {
	var out *Challenge
	err := e.store.WithTx(ctx, func(tx storage.Ops) error {
		ch, err := e.getChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		if !ch.IsParticipant(winnerID) {
			return ErrNotAParticipant
		}
		if ch.Winner != nil {
			if err := e.unwinTx(ctx, tx, ch); err != nil {
				return err
			}
		}
		if err := e.claimTx(ctx, tx, ch, winnerID, true); err != nil {
			return err
		}
		out = ch
		return nil
	})
	return out, err
}

// claimTx applies the victory payout within an open transaction. force
// bypasses the state check, never the membership check.
func (e *Engine) claimTx(ctx context.Context, tx storage.Ops, ch *Challenge, winnerID int64, force bool) error {
	if !ch.IsParticipant(winnerID) {
		return ErrNotAParticipant
	}
	if !force && ch.State != StateStarted {
		return fmt.Errorf("%w: the game can't be finished", ErrIllegalTransition)
	}

	if err := tx.SetChallengeState(ctx, ch.ID, string(StateFinished)); err != nil {
		return storeErr(err)
	}
	if err := tx.SetChallengeWinner(ctx, ch.ID, winnerID); err != nil {
		return storeErr(err)
	}
	if err := tx.AdjustChips(ctx, winnerID, 2*ch.Bet); err != nil {
		return storeErr(err)
	}

	ch.Winner = &winnerID
	ch.State = StateFinished
	return nil
}

// Abort refunds escrow and moves the challenge to aborted. byPlayer == 0
// denotes a system abort (timeout sweep); system aborts skip the membership
// check and never penalize anyone. A player aborting an already-accepted
// challenge gets their aborted counter bumped.
func (e *Engine) Abort(ctx context.Context, challengeID, byPlayer int64) (*Challenge, error) {
	var out *Challenge
	err := e.store.WithTx(ctx, func(tx storage.Ops) error {
		ch, err := e.getChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		if byPlayer != 0 && !ch.IsParticipant(byPlayer) {
			return ErrNotAParticipant
		}
		if ch.State != StateCreated && ch.State != StateAccepted {
			return fmt.Errorf("%w: can't abort a game that has already been started", ErrIllegalTransition)
		}
		if err := e.abortTx(ctx, tx, ch, byPlayer); err != nil {
			return err
		}
		out = ch
		return nil
	})
	return out, err
}

// ForceAbort aborts a challenge in any state, taking back any payout first so
// the refunds below don't mint chips. The whole correction is one
// transaction; nobody's aborted counter moves.
func (e *Engine) ForceAbort(ctx context.Context, challengeID int64) (*Challenge, error) {
	var out *Challenge
	err := e.store.WithTx(ctx, func(tx storage.Ops) error {
		ch, err := e.getChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		if ch.Winner != nil {
			if err := e.unwinTx(ctx, tx, ch); err != nil {
				return err
			}
		}
		if err := e.abortTx(ctx, tx, ch, 0); err != nil {
			return err
		}
		out = ch
		return nil
	})
	return out, err
}

// abortTx flips the state and refunds every staked bet within an open
// transaction. The aborted counter moves only for a player walking away from
// an accepted challenge; byPlayer is then a verified participant, so the
// increment cannot miss its row.
func (e *Engine) abortTx(ctx context.Context, tx storage.Ops, ch *Challenge, byPlayer int64) error {
	if err := tx.SetChallengeState(ctx, ch.ID, string(StateAborted)); err != nil {
		return storeErr(err)
	}
	if err := tx.AdjustChips(ctx, ch.AuthorID, ch.Bet); err != nil {
		return storeErr(err)
	}
	if ch.AcceptedBy != nil {
		if err := tx.AdjustChips(ctx, *ch.AcceptedBy, ch.Bet); err != nil {
			return storeErr(err)
		}
		if byPlayer != 0 {
			if err := tx.IncrementAbortedCounter(ctx, byPlayer); err != nil {
				return storeErr(err)
			}
		}
	}

	ch.State = StateAborted
	return nil
}

// unwinTx takes the recorded payout back from the winner within an open
// transaction. If the winner no longer holds the chips this fails with
// InsufficientFunds and the transaction rolls back; that is an unrecoverable
// admin situation, not something to retry.
func (e *Engine) unwinTx(ctx context.Context, tx storage.Ops, ch *Challenge) error {
	if err := tx.AdjustChips(ctx, *ch.Winner, -2*ch.Bet); err != nil {
		if errors.Is(err, storage.ErrNegativeBalance) {
			return fmt.Errorf("%w: previous winner no longer holds the payout", ErrInsufficientFunds)
		}
		return storeErr(err)
	}
	return nil
}

func (e *Engine) getChallenge(ctx context.Context, tx storage.Ops, id int64) (*Challenge, error) {
	row, err := tx.GetChallenge(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return challengeFromRow(row), nil
}

// ChallengeByID returns the challenge with the given id.
func (e *Engine) ChallengeByID(ctx context.Context, id int64) (*Challenge, error) {
	return e.getChallenge(ctx, e.store, id)
}

// ChallengeByExternalRef returns the challenge linked to an announcement
// message.
func (e *Engine) ChallengeByExternalRef(ctx context.Context, ref int64) (*Challenge, error) {
	row, err := e.store.GetChallengeByExternalRef(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return challengeFromRow(row), nil
}

// ChallengesByState lists every challenge in the given state.
func (e *Engine) ChallengesByState(ctx context.Context, state State) ([]*Challenge, error) {
	rows, err := e.store.ListChallengesByState(ctx, string(state))
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]*Challenge, len(rows))
	for i := range rows {
		out[i] = challengeFromRow(&rows[i])
	}
	return out, nil
}

// TimedOut lists created challenges whose timeout has passed.
func (e *Engine) TimedOut(ctx context.Context) ([]*Challenge, error) {
	rows, err := e.store.ListTimedOutChallenges(ctx, string(StateCreated), e.now())
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]*Challenge, len(rows))
	for i := range rows {
		out[i] = challengeFromRow(&rows[i])
	}
	return out, nil
}
