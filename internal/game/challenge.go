package game

import (
	"time"

	"github.com/highroller-bot/highroller/internal/pkg/storage"
)

// State is the lifecycle state of a challenge.
type State string

const (
	// StatePrecreated is transient: a draft that passed affordability checks
	// but has not been persisted yet. It never reaches storage.
	StatePrecreated State = "precreated"
	StateCreated    State = "created"
	StateAccepted   State = "accepted"
	StateStarted    State = "started"
	StateFinished   State = "finished"
	StateAborted    State = "aborted"
)

// Challenge is a head-to-head bet between two players. While the state is
// created/accepted/started the bet is held in escrow: it has been debited
// from every staking party and credited to nobody.
type Challenge struct {
	ID          int64
	ExternalRef *int64
	Bet         int
	AuthorID    int64
	AcceptedBy  *int64
	State       State
	TimeoutAt   time.Time
	Map         string
	Tribe       string
	Notes       string
	GameName    *string
	Winner      *int64
	Private     bool
}

// IsParticipant reports whether the player stakes chips in this challenge.
func (c *Challenge) IsParticipant(playerID int64) bool {
	return c.AuthorID == playerID || (c.AcceptedBy != nil && *c.AcceptedBy == playerID)
}

// Open reports whether the challenge still holds chips in escrow.
func (c *Challenge) Open() bool {
	return c.State == StateCreated || c.State == StateAccepted || c.State == StateStarted
}

func challengeFromRow(row *storage.ChallengeRow) *Challenge {
	return &Challenge{
		ID:          row.ID,
		ExternalRef: row.ExternalRef,
		Bet:         row.Bet,
		AuthorID:    row.AuthorID,
		AcceptedBy:  row.AcceptedBy,
		State:       State(row.State),
		TimeoutAt:   row.TimeoutAt,
		Map:         row.Map,
		Tribe:       row.Tribe,
		Notes:       row.Notes,
		GameName:    row.GameName,
		Winner:      row.Winner,
		Private:     row.Private,
	}
}

func (c *Challenge) toRow() *storage.ChallengeRow {
	return &storage.ChallengeRow{
		ID:          c.ID,
		ExternalRef: c.ExternalRef,
		Bet:         c.Bet,
		AuthorID:    c.AuthorID,
		AcceptedBy:  c.AcceptedBy,
		State:       string(c.State),
		TimeoutAt:   c.TimeoutAt,
		Map:         c.Map,
		Tribe:       c.Tribe,
		Notes:       c.Notes,
		GameName:    c.GameName,
		Winner:      c.Winner,
		Private:     c.Private,
	}
}

// Draft is a challenge that passed precreation but is not committed yet. It
// is not a valid Challenge until FinishCreate persists it; keeping the
// challenge unexported makes it impossible to hand a draft to code expecting
// a persisted row.
type Draft struct {
	challenge Challenge
	committed bool
}

// ID returns the id reserved for the challenge being drafted.
func (d *Draft) ID() int64 { return d.challenge.ID }

// Bet returns the stake of the challenge being drafted.
func (d *Draft) Bet() int { return d.challenge.Bet }

// AuthorID returns the drafting player.
func (d *Draft) AuthorID() int64 { return d.challenge.AuthorID }

// TimeoutAt returns when the challenge will expire if nobody accepts it.
func (d *Draft) TimeoutAt() time.Time { return d.challenge.TimeoutAt }

// Map returns the map the draft was created with.
func (d *Draft) Map() string { return d.challenge.Map }

// Tribe returns the tribe the draft was created with.
func (d *Draft) Tribe() string { return d.challenge.Tribe }

// Private reports whether the challenge should stay out of public listings.
func (d *Draft) Private() bool { return d.challenge.Private }
