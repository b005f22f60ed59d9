package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/highroller-bot/highroller/internal/pkg/config"
)

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps the ledger in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	pgOps
}

// NewPostgresStore opens a connection pool, pings it and creates the schema
// if it doesn't exist yet.
func NewPostgresStore(cfg *config.PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{db: db, pgOps: pgOps{q: db}}

	if err := store.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("postgres ledger store initialized")
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS players (
		player_id BIGINT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		current_chips INTEGER NOT NULL CHECK (current_chips >= 0),
		total_chips INTEGER NOT NULL,
		aborted_games INTEGER NOT NULL DEFAULT 0
	);

	CREATE SEQUENCE IF NOT EXISTS challenge_id_seq;

	CREATE TABLE IF NOT EXISTS challenges (
		challenge_id BIGINT PRIMARY KEY,
		external_ref BIGINT,
		bet INTEGER NOT NULL CHECK (bet > 0),
		author_id BIGINT NOT NULL REFERENCES players(player_id),
		accepted_by BIGINT REFERENCES players(player_id),
		state VARCHAR(16) NOT NULL,
		timeout_at TIMESTAMPTZ NOT NULL,
		map VARCHAR(100) NOT NULL DEFAULT '',
		tribe VARCHAR(100) NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		game_name TEXT,
		winner BIGINT REFERENCES players(player_id),
		private BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_challenges_state ON challenges(state);
	CREATE INDEX IF NOT EXISTS idx_challenges_external_ref ON challenges(external_ref);
	CREATE INDEX IF NOT EXISTS idx_challenges_author ON challenges(author_id);
	CREATE INDEX IF NOT EXISTS idx_players_username ON players(username);
	`

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// WithTx runs fn in a single database transaction. Row reads inside the
// transaction lock the rows they touch (FOR UPDATE), so concurrent
// transitions on the same player or challenge serialize at the database.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Ops) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&pgOps{q: tx, locking: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// pgOps implements Ops over either the pool or an open transaction. When
// locking is set (inside a transaction) single-row reads take FOR UPDATE.
type pgOps struct {
	q       querier
	locking bool
}

var _ Ops = (*pgOps)(nil)

func (o *pgOps) rowLock() string {
	if o.locking {
		return " FOR UPDATE"
	}
	return ""
}

const playerColumns = "player_id, username, current_chips, total_chips, aborted_games"

func scanPlayer(row *sql.Row) (*PlayerRow, error) {
	var p PlayerRow
	err := row.Scan(&p.ID, &p.Username, &p.CurrentChips, &p.TotalChips, &p.AbortedGames)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan player: %w", err)
	}
	return &p, nil
}

func (o *pgOps) CreatePlayer(ctx context.Context, row *PlayerRow) error {
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO players (player_id, username, current_chips, total_chips, aborted_games)
		 VALUES ($1, $2, $3, $4, $5)`,
		row.ID, row.Username, row.CurrentChips, row.TotalChips, row.AbortedGames)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert player: %w", err)
	}
	return nil
}

func (o *pgOps) GetPlayer(ctx context.Context, id int64) (*PlayerRow, error) {
	return scanPlayer(o.q.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE player_id = $1`+o.rowLock(), id))
}

func (o *pgOps) GetPlayerByUsername(ctx context.Context, username string) (*PlayerRow, error) {
	return scanPlayer(o.q.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE username = $1`+o.rowLock(), username))
}

func (o *pgOps) AdjustChips(ctx context.Context, id int64, delta int) error {
	res, err := o.q.ExecContext(ctx,
		`UPDATE players
		 SET current_chips = current_chips + $1, total_chips = total_chips + $1
		 WHERE player_id = $2 AND current_chips + $1 >= 0`,
		delta, id)
	if err != nil {
		return fmt.Errorf("failed to adjust chips: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		// Either the player is unknown or the delta would go negative.
		if _, getErr := o.GetPlayer(ctx, id); getErr != nil {
			return getErr
		}
		return ErrNegativeBalance
	}
	return nil
}

func (o *pgOps) IncrementAbortedCounter(ctx context.Context, id int64) error {
	res, err := o.q.ExecContext(ctx,
		`UPDATE players SET aborted_games = aborted_games + 1 WHERE player_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment aborted counter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (o *pgOps) GiveAllPlayersChips(ctx context.Context, amount int) error {
	_, err := o.q.ExecContext(ctx,
		`UPDATE players
		 SET current_chips = current_chips + $1, total_chips = total_chips + $1`, amount)
	if err != nil {
		return fmt.Errorf("failed to give all players chips: %w", err)
	}
	return nil
}

func (o *pgOps) ResetAllCurrentChips(ctx context.Context, amount int) error {
	_, err := o.q.ExecContext(ctx, `UPDATE players SET current_chips = $1`, amount)
	if err != nil {
		return fmt.Errorf("failed to reset current chips: %w", err)
	}
	return nil
}

func (o *pgOps) topPlayers(ctx context.Context, orderBy string, limit int) ([]PlayerRow, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players ORDER BY `+orderBy+` DESC, player_id ASC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top players: %w", err)
	}
	defer rows.Close()

	var out []PlayerRow
	for rows.Next() {
		var p PlayerRow
		if err := rows.Scan(&p.ID, &p.Username, &p.CurrentChips, &p.TotalChips, &p.AbortedGames); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (o *pgOps) TopPlayersByCurrentChips(ctx context.Context, limit int) ([]PlayerRow, error) {
	return o.topPlayers(ctx, "current_chips", limit)
}

func (o *pgOps) TopPlayersByTotalChips(ctx context.Context, limit int) ([]PlayerRow, error) {
	return o.topPlayers(ctx, "total_chips", limit)
}

func (o *pgOps) Winrate(ctx context.Context, id int64) (int, int, error) {
	var wins, played int
	err := o.q.QueryRowContext(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE winner = $1),
			COUNT(*)
		 FROM challenges
		 WHERE (author_id = $1 OR accepted_by = $1)
		   AND state NOT IN ('created', 'aborted')`,
		id).Scan(&wins, &played)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query winrate: %w", err)
	}
	return wins, played, nil
}

func (o *pgOps) AllocateChallengeID(ctx context.Context) (int64, error) {
	var id int64
	if err := o.q.QueryRowContext(ctx, `SELECT nextval('challenge_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate challenge id: %w", err)
	}
	return id, nil
}

const challengeColumns = "challenge_id, external_ref, bet, author_id, accepted_by, state, timeout_at, map, tribe, notes, game_name, winner, private"

func scanChallenge(scan func(dest ...any) error) (*ChallengeRow, error) {
	var c ChallengeRow
	err := scan(&c.ID, &c.ExternalRef, &c.Bet, &c.AuthorID, &c.AcceptedBy, &c.State,
		&c.TimeoutAt, &c.Map, &c.Tribe, &c.Notes, &c.GameName, &c.Winner, &c.Private)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan challenge: %w", err)
	}
	return &c, nil
}

func (o *pgOps) CreateChallenge(ctx context.Context, row *ChallengeRow) error {
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO challenges (challenge_id, external_ref, bet, author_id, accepted_by, state, timeout_at, map, tribe, notes, game_name, winner, private)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		row.ID, row.ExternalRef, row.Bet, row.AuthorID, row.AcceptedBy, row.State,
		row.TimeoutAt, row.Map, row.Tribe, row.Notes, row.GameName, row.Winner, row.Private)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert challenge: %w", err)
	}
	return nil
}

func (o *pgOps) GetChallenge(ctx context.Context, id int64) (*ChallengeRow, error) {
	return scanChallenge(o.q.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE challenge_id = $1`+o.rowLock(), id).Scan)
}

func (o *pgOps) GetChallengeByExternalRef(ctx context.Context, ref int64) (*ChallengeRow, error) {
	return scanChallenge(o.q.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE external_ref = $1`+o.rowLock(), ref).Scan)
}

func (o *pgOps) listChallenges(ctx context.Context, query string, args ...any) ([]ChallengeRow, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer rows.Close()

	var out []ChallengeRow
	for rows.Next() {
		c, err := scanChallenge(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (o *pgOps) ListChallengesByState(ctx context.Context, state string) ([]ChallengeRow, error) {
	return o.listChallenges(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE state = $1 ORDER BY challenge_id`, state)
}

func (o *pgOps) ListTimedOutChallenges(ctx context.Context, state string, now time.Time) ([]ChallengeRow, error) {
	return o.listChallenges(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE state = $1 AND timeout_at <= $2 ORDER BY challenge_id`,
		state, now)
}

func (o *pgOps) setChallenge(ctx context.Context, id int64, column string, value any) error {
	res, err := o.q.ExecContext(ctx,
		`UPDATE challenges SET `+column+` = $1 WHERE challenge_id = $2`, value, id)
	if err != nil {
		return fmt.Errorf("failed to update challenge %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (o *pgOps) SetChallengeState(ctx context.Context, id int64, state string) error {
	return o.setChallenge(ctx, id, "state", state)
}

func (o *pgOps) SetChallengeAcceptedBy(ctx context.Context, id, playerID int64) error {
	return o.setChallenge(ctx, id, "accepted_by", playerID)
}

func (o *pgOps) SetChallengeGameName(ctx context.Context, id int64, name string) error {
	return o.setChallenge(ctx, id, "game_name", name)
}

func (o *pgOps) SetChallengeWinner(ctx context.Context, id, playerID int64) error {
	return o.setChallenge(ctx, id, "winner", playerID)
}

func (o *pgOps) SetChallengeExternalRef(ctx context.Context, id, ref int64) error {
	return o.setChallenge(ctx, id, "external_ref", ref)
}
