// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/danielhkuo/pollmirror/models"
)

// Store is the typed repository over the poll ledger. All poll and vote
// rows are read and written through it; no other package touches SQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreatePoll inserts the poll and its options in one transaction.
func (s *Store) CreatePoll(ctx context.Context, p *models.Poll) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO poll (id, question, status, multiple_choice, anonymous,
			open_time, close_time, presence_ref, channel_ref, server_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.Question, p.Status, p.MultipleChoice, p.Anonymous,
		p.OpenTime, p.CloseTime, p.PresenceRef, p.ChannelRef, p.ServerRef, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert poll: %w", err)
	}

	for i := range p.Options {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO poll_option (poll_id, idx, label, marker)
			VALUES ($1, $2, $3, $4)
		`, p.ID, i, p.Options[i], p.OptionMarkers[i])
		if err != nil {
			return fmt.Errorf("failed to insert option %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetPoll loads a poll with its ordered options.
// Returns models.ErrPollNotFound when no row exists.
func (s *Store) GetPoll(ctx context.Context, id string) (*models.Poll, error) {
	p, err := scanPoll(s.db.QueryRowContext(ctx, `
		SELECT id, question, status, multiple_choice, anonymous,
			open_time, close_time, presence_ref, channel_ref, server_ref, created_at
		FROM poll WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrPollNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query poll: %w", err)
	}

	if err := s.loadOptions(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPollsByStatus returns all polls in any of the given statuses,
// options included, ordered by creation time.
func (s *Store) ListPollsByStatus(ctx context.Context, statuses ...string) ([]*models.Poll, error) {
	if len(statuses) == 0 {
		statuses = []string{models.StatusScheduled, models.StatusActive, models.StatusClosed}
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = st
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, status, multiple_choice, anonymous,
			open_time, close_time, presence_ref, channel_ref, server_ref, created_at
		FROM poll WHERE status IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY created_at, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query polls: %w", err)
	}
	defer rows.Close()

	var polls []*models.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range polls {
		if err := s.loadOptions(ctx, p); err != nil {
			return nil, err
		}
	}
	return polls, nil
}

// Snapshot reads a poll and all its votes in a single transaction so the
// close procedure's later phases work from consistent data.
func (s *Store) Snapshot(ctx context.Context, id string) (*models.Poll, []models.Vote, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := scanPoll(tx.QueryRowContext(ctx, `
		SELECT id, question, status, multiple_choice, anonymous,
			open_time, close_time, presence_ref, channel_ref, server_ref, created_at
		FROM poll WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil, models.ErrPollNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query poll: %w", err)
	}

	optRows, err := tx.QueryContext(ctx, `
		SELECT label, marker FROM poll_option WHERE poll_id = $1 ORDER BY idx
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query options: %w", err)
	}
	if err := collectOptions(optRows, p); err != nil {
		return nil, nil, err
	}

	voteRows, err := tx.QueryContext(ctx, `
		SELECT id, poll_id, user_ref, option_index, voted_at
		FROM vote WHERE poll_id = $1 ORDER BY voted_at, id
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query votes: %w", err)
	}
	votes, err := collectVotes(voteRows)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return p, votes, nil
}

// TransitionStatus atomically moves a poll from one status to another.
// Returns false without error when the poll is not in the from status,
// which is how callers implement idempotent transitions.
func (s *Store) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE poll SET status = $1 WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition poll status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReopenPoll moves a closed poll back to active and advances its close
// time in the same statement. Returns false when the poll is not closed.
func (s *Store) ReopenPoll(ctx context.Context, id string, closeTime time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE poll SET status = $1, close_time = $2 WHERE id = $3 AND status = $4
	`, models.StatusActive, closeTime, id, models.StatusClosed)
	if err != nil {
		return false, fmt.Errorf("failed to reopen poll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetPresenceRef records the mirrored message id for a poll.
func (s *Store) SetPresenceRef(ctx context.Context, id, ref string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE poll SET presence_ref = $1 WHERE id = $2
	`, ref, id)
	if err != nil {
		return fmt.Errorf("failed to set presence ref: %w", err)
	}
	return nil
}

// DeletePoll removes the poll, its options, and its votes in one
// transaction. Vote rows must go explicitly because the vote table has
// no enforced foreign key.
func (s *Store) DeletePoll(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vote WHERE poll_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete votes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_option WHERE poll_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete options: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM poll WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete poll: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrPollNotFound
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoll(row rowScanner) (*models.Poll, error) {
	var p models.Poll
	var presenceRef sql.NullString
	err := row.Scan(&p.ID, &p.Question, &p.Status, &p.MultipleChoice, &p.Anonymous,
		&p.OpenTime, &p.CloseTime, &presenceRef, &p.ChannelRef, &p.ServerRef, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if presenceRef.Valid {
		p.PresenceRef = &presenceRef.String
	}
	return &p, nil
}

func (s *Store) loadOptions(ctx context.Context, p *models.Poll) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, marker FROM poll_option WHERE poll_id = $1 ORDER BY idx
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to query options: %w", err)
	}
	return collectOptions(rows, p)
}

func collectOptions(rows *sql.Rows, p *models.Poll) error {
	defer rows.Close()
	p.Options = p.Options[:0]
	p.OptionMarkers = p.OptionMarkers[:0]
	for rows.Next() {
		var label, marker string
		if err := rows.Scan(&label, &marker); err != nil {
			return fmt.Errorf("failed to scan option: %w", err)
		}
		p.Options = append(p.Options, label)
		p.OptionMarkers = append(p.OptionMarkers, marker)
	}
	return rows.Err()
}
