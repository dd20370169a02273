// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danielhkuo/pollmirror/models"
)

// UpsertUserVote implements single-choice semantics: overwrite the
// existing row for (poll_id, user_ref) in place, else insert a new one.
// Returns true when an existing row was overwritten.
func (s *Store) UpsertUserVote(ctx context.Context, v *models.Vote) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vote SET option_index = $1, voted_at = $2
		WHERE poll_id = $3 AND user_ref = $4
	`, v.OptionIndex, v.VotedAt, v.PollID, v.UserRef)
	if err != nil {
		return false, fmt.Errorf("failed to update vote: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vote (id, poll_id, user_ref, option_index, voted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, v.ID, v.PollID, v.UserRef, v.OptionIndex, v.VotedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert vote: %w", err)
	}
	return false, nil
}

// InsertVoteIfAbsent implements multiple-choice semantics: insert the
// (poll_id, user_ref, option_index) row unless it already exists.
// ON CONFLICT DO NOTHING works on both sqlite and postgres.
// Returns true when a row was actually inserted.
func (s *Store) InsertVoteIfAbsent(ctx context.Context, v *models.Vote) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO vote (id, poll_id, user_ref, option_index, voted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (poll_id, user_ref, option_index) DO NOTHING
	`, v.ID, v.PollID, v.UserRef, v.OptionIndex, v.VotedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert vote: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteVote removes one vote row by id.
func (s *Store) DeleteVote(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vote WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return nil
}

// DeleteUserVote removes the row for (poll_id, user_ref, option_index),
// the retraction path when a user removes their reaction.
func (s *Store) DeleteUserVote(ctx context.Context, pollID, userRef string, optionIndex int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM vote WHERE poll_id = $1 AND user_ref = $2 AND option_index = $3
	`, pollID, userRef, optionIndex)
	if err != nil {
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return nil
}

// LoadVotesForPoll returns all vote rows for a poll ordered by time.
func (s *Store) LoadVotesForPoll(ctx context.Context, pollID string) ([]models.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, poll_id, user_ref, option_index, voted_at
		FROM vote WHERE poll_id = $1 ORDER BY voted_at, id
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	return collectVotes(rows)
}

// VotersByOption groups a poll's voters by option index.
func (s *Store) VotersByOption(ctx context.Context, pollID string) (map[int]map[string]bool, error) {
	votes, err := s.LoadVotesForPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	byOption := make(map[int]map[string]bool)
	for _, v := range votes {
		if byOption[v.OptionIndex] == nil {
			byOption[v.OptionIndex] = make(map[string]bool)
		}
		byOption[v.OptionIndex][v.UserRef] = true
	}
	return byOption, nil
}

// OrphanVotes returns votes whose poll no longer exists.
func (s *Store) OrphanVotes(ctx context.Context) ([]models.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.poll_id, v.user_ref, v.option_index, v.voted_at
		FROM vote v LEFT JOIN poll p ON v.poll_id = p.id
		WHERE p.id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphan votes: %w", err)
	}
	return collectVotes(rows)
}

// OutOfRangeVotes returns votes whose option index falls outside the
// poll's current option count.
func (s *Store) OutOfRangeVotes(ctx context.Context) ([]models.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.poll_id, v.user_ref, v.option_index, v.voted_at
		FROM vote v JOIN poll p ON v.poll_id = p.id
		WHERE v.option_index < 0
		   OR v.option_index >= (SELECT COUNT(*) FROM poll_option o WHERE o.poll_id = v.poll_id)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query out-of-range votes: %w", err)
	}
	return collectVotes(rows)
}

// CountVotes returns the total number of vote rows, used for integrity
// scoring denominators.
func (s *Store) CountVotes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vote`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return n, nil
}

func collectVotes(rows *sql.Rows) ([]models.Vote, error) {
	defer rows.Close()
	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ID, &v.PollID, &v.UserRef, &v.OptionIndex, &v.VotedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
