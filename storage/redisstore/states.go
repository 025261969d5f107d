// Package redisstore keeps authorization states in Redis so several instances can
// share them without a SQL database.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/states"
)

const (
	defaultPrefix = "azure_oauth2:"
	// Keys outlive their expiry by this much so cleanup, not Redis, decides when they go.
	retentionGrace = time.Hour
)

// Create writes the hash only if the token is new, and indexes it by expiry.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('PEXPIRE', KEYS[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[1], KEYS[1])
return 1
`)

// MarkUsed flips is_used only for an unused, unexpired state.
var markUsedScript = redis.NewScript(`
local h = redis.call('HMGET', KEYS[1], 'is_used', 'expires_time')
if not h[1] or h[1] == '1' then
  return 0
end
if tonumber(h[2]) <= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'is_used', '1', 'update_time', ARGV[1])
redis.call('SADD', KEYS[2], KEYS[1])
return 1
`)

var _ states.Repo = (*StateRepo)(nil)

type StateRepo struct {
	client redis.UniversalClient
	prefix string
}

type Option func(*StateRepo)

// WithKeyPrefix namespaces every key the repo writes.
func WithKeyPrefix(prefix string) Option {
	return func(r *StateRepo) {
		r.prefix = prefix
	}
}

func NewStateRepo(client redis.UniversalClient, options ...Option) *StateRepo {
	r := &StateRepo{client: client, prefix: defaultPrefix}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *StateRepo) stateKey(token string) string {
	return r.prefix + "state:" + token
}

func (r *StateRepo) seqKey() string {
	return r.prefix + "state:seq"
}

func (r *StateRepo) expiryKey() string {
	return r.prefix + "states:by_expiry"
}

func (r *StateRepo) usedKey() string {
	return r.prefix + "states:used"
}

func (r *StateRepo) Create(ctx context.Context, s *states.State) error {
	id, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return errors.Wrap(err, "[StateRepo.Create] Incr")
	}
	ttl := s.ExpiresTime.Sub(s.CreateTime) + retentionGrace
	if ttl < retentionGrace {
		ttl = retentionGrace
	}

	args := []any{toMillis(s.ExpiresTime), ttl.Milliseconds()}
	for field, value := range encode(id, s) {
		args = append(args, field, value)
	}
	created, err := createScript.Run(ctx, r.client, []string{r.stateKey(s.State), r.expiryKey()}, args...).Int()
	if err != nil {
		return errors.Wrap(err, "[StateRepo.Create] create script")
	}
	if created == 0 {
		return fmt.Errorf("%w: state", apperrors.ErrDuplicate)
	}
	s.ID = id
	return nil
}

func (r *StateRepo) FindValid(ctx context.Context, token string, now time.Time) (*states.State, error) {
	fields, err := r.client.HGetAll(ctx, r.stateKey(token)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[StateRepo.FindValid] HGetAll")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: state", apperrors.ErrNotFound)
	}
	s, err := decode(fields)
	if err != nil {
		return nil, errors.Wrap(err, "[StateRepo.FindValid] decode")
	}
	if !s.IsValid(now) {
		return nil, fmt.Errorf("%w: state", apperrors.ErrNotFound)
	}
	return s, nil
}

func (r *StateRepo) MarkUsed(ctx context.Context, token string, now time.Time) (bool, error) {
	n, err := markUsedScript.Run(ctx, r.client, []string{r.stateKey(token), r.usedKey()}, toMillis(now)).Int()
	if err != nil {
		return false, errors.Wrap(err, "[StateRepo.MarkUsed] script")
	}
	return n == 1, nil
}

func (r *StateRepo) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.client.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(toMillis(now), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "[StateRepo.CleanupExpired] ZRangeByScore")
	}
	used, err := r.client.SMembers(ctx, r.usedKey()).Result()
	if err != nil {
		return 0, errors.Wrap(err, "[StateRepo.CleanupExpired] SMembers")
	}

	keys := make(map[string]struct{}, len(expired)+len(used))
	for _, k := range append(expired, used...) {
		keys[k] = struct{}{}
	}

	removed := 0
	for key := range keys {
		// Each key is deleted by at most one concurrent cleanup; only that one counts it.
		n, err := r.client.Del(ctx, key).Result()
		if err != nil {
			return removed, errors.Wrap(err, "[StateRepo.CleanupExpired] Del")
		}
		removed += int(n)
		if err := r.client.ZRem(ctx, r.expiryKey(), key).Err(); err != nil {
			return removed, errors.Wrap(err, "[StateRepo.CleanupExpired] ZRem")
		}
		if err := r.client.SRem(ctx, r.usedKey(), key).Err(); err != nil {
			return removed, errors.Wrap(err, "[StateRepo.CleanupExpired] SRem")
		}
	}
	return removed, nil
}

func encode(id int64, s *states.State) map[string]any {
	fields := map[string]any{
		"id":           id,
		"config_id":    s.ClientID,
		"state":        s.State,
		"is_used":      boolField(s.IsUsed),
		"expires_time": toMillis(s.ExpiresTime),
		"create_time":  toMillis(s.CreateTime),
		"update_time":  toMillis(s.UpdateTime),
	}
	optional := map[string]*string{
		"session_id":            s.SessionID,
		"code_challenge":        s.CodeChallenge,
		"code_challenge_method": s.CodeChallengeMethod,
		"redirect_uri":          s.RedirectURI,
	}
	for field, value := range optional {
		if value != nil {
			fields[field] = *value
		}
	}
	return fields
}

func decode(fields map[string]string) (*states.State, error) {
	var s states.State
	ints := map[string]*int64{"id": &s.ID, "config_id": &s.ClientID}
	for field, dest := range ints {
		v, err := strconv.ParseInt(fields[field], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", field)
		}
		*dest = v
	}
	times := map[string]*time.Time{"expires_time": &s.ExpiresTime, "create_time": &s.CreateTime, "update_time": &s.UpdateTime}
	for field, dest := range times {
		v, err := strconv.ParseInt(fields[field], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", field)
		}
		*dest = fromMillis(v)
	}
	optional := map[string]**string{
		"session_id":            &s.SessionID,
		"code_challenge":        &s.CodeChallenge,
		"code_challenge_method": &s.CodeChallengeMethod,
		"redirect_uri":          &s.RedirectURI,
	}
	for field, dest := range optional {
		if v, ok := fields[field]; ok {
			value := v
			*dest = &value
		}
	}
	s.State = fields["state"]
	s.IsUsed = fields["is_used"] == "1"
	return &s, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
