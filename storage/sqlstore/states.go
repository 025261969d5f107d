package sqlstore

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-azure-oauth2-client/states"
)

const stateColumns = `id, config_id, state, session_id, code_challenge, code_challenge_method, redirect_uri,
	is_used, expires_time, create_time, update_time`

var _ states.Repo = (*StateRepo)(nil)

type StateRepo struct {
	store *Store
}

func (r *StateRepo) Create(ctx context.Context, s *states.State) error {
	err := r.store.queryRow(ctx, `INSERT INTO azure_oauth2_states
		(config_id, state, session_id, code_challenge, code_challenge_method, redirect_uri, is_used,
		 expires_time, create_time, update_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		s.ClientID, s.State, s.SessionID, s.CodeChallenge, s.CodeChallengeMethod, s.RedirectURI, s.IsUsed,
		toMillis(s.ExpiresTime), toMillis(s.CreateTime), toMillis(s.UpdateTime),
	).Scan(&s.ID)
	return classify(err, "state")
}

func (r *StateRepo) FindValid(ctx context.Context, token string, now time.Time) (*states.State, error) {
	row := r.store.queryRow(ctx, `SELECT `+stateColumns+` FROM azure_oauth2_states
		WHERE state = $1 AND is_used = FALSE AND expires_time > $2`, token, toMillis(now))
	s, err := scanState(row)
	if err != nil {
		return nil, classify(err, "state")
	}
	return s, nil
}

func (r *StateRepo) MarkUsed(ctx context.Context, token string, now time.Time) (bool, error) {
	res, err := r.store.exec(ctx, `UPDATE azure_oauth2_states SET is_used = TRUE, update_time = $2
		WHERE state = $1 AND is_used = FALSE AND expires_time > $2`, token, toMillis(now))
	if err != nil {
		return false, errors.Wrap(err, "[StateRepo.MarkUsed]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[StateRepo.MarkUsed] RowsAffected")
	}
	return n == 1, nil
}

func (r *StateRepo) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.store.exec(ctx, `DELETE FROM azure_oauth2_states WHERE expires_time < $1 OR is_used = TRUE`, toMillis(now))
	if err != nil {
		return 0, errors.Wrap(err, "[StateRepo.CleanupExpired]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "[StateRepo.CleanupExpired] RowsAffected")
	}
	return int(n), nil
}

func scanState(row scanner) (*states.State, error) {
	var (
		s                         states.State
		expires, created, updated int64
	)
	if err := row.Scan(&s.ID, &s.ClientID, &s.State, &s.SessionID, &s.CodeChallenge, &s.CodeChallengeMethod,
		&s.RedirectURI, &s.IsUsed, &expires, &created, &updated); err != nil {
		return nil, err
	}
	s.ExpiresTime = fromMillis(expires)
	s.CreateTime = fromMillis(created)
	s.UpdateTime = fromMillis(updated)
	return &s, nil
}
