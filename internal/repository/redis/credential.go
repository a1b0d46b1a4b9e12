// Package redis stores refresh credentials in Redis. Each credential is a
// hash that Redis expires on its own at the credential's expiry; a set per
// owner indexes the owner's tokens for bulk revocation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/pkg/database"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
)

const (
	tokenPrefix = "refresh:token:"
	ownerPrefix = "refresh:owner:"

	scanBatch       = 500
	maxWatchRetries = 5
)

func tokenKey(token string) string { return tokenPrefix + token }
func ownerKey(owner string) string { return ownerPrefix + owner }

// CredentialStore implements repository.CredentialStore on Redis.
type CredentialStore struct {
	rdb redis.UniversalClient

	// betweenSweeps runs between the two DeleteAll sweeps; tests only.
	betweenSweeps func()
}

func NewCredentialStore(rdb redis.UniversalClient) *CredentialStore {
	return &CredentialStore{rdb: rdb}
}

func (s *CredentialStore) Create(ctx context.Context, c *domain.RefreshCredential) (err error) {
	ctx, end := database.TraceRedis(ctx, "CreateRefreshCredential", "MULTI HSET PEXPIREAT SADD")
	defer func() { end(err) }()

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, tokenKey(c.Token),
			"owner", c.Owner,
			"expires_at", c.ExpiresAt.UTC().Format(time.RFC3339Nano),
			"created_at", c.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		p.PExpireAt(ctx, tokenKey(c.Token), c.ExpiresAt)
		p.SAdd(ctx, ownerKey(c.Owner), c.Token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store refresh credential: %w", err)
	}
	return nil
}

// FindByToken is a single HGETALL, so it observes a concurrent delete either
// fully or not at all.
func (s *CredentialStore) FindByToken(ctx context.Context, token string) (_ *domain.RefreshCredential, err error) {
	ctx, end := database.TraceRedis(ctx, "FindRefreshCredential", "HGETALL")
	defer func() { end(err) }()

	fields, err := s.rdb.HGetAll(ctx, tokenKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("read refresh credential: %w", err)
	}
	if len(fields) == 0 {
		return nil, apperrors.ErrNotFound
	}

	c := &domain.RefreshCredential{Token: token, Owner: fields["owner"]}
	if c.ExpiresAt, err = time.Parse(time.RFC3339Nano, fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("decode refresh credential expiry: %w", err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("decode refresh credential creation: %w", err)
	}
	return c, nil
}

func (s *CredentialStore) Delete(ctx context.Context, token string) (_ int64, err error) {
	ctx, end := database.TraceRedis(ctx, "DeleteRefreshCredential", "HGET MULTI DEL SREM")
	defer func() { end(err) }()

	owner, err := s.rdb.HGet(ctx, tokenKey(token), "owner").Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read refresh credential owner: %w", err)
	}

	var del *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, tokenKey(token))
		p.SRem(ctx, ownerKey(owner), token)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete refresh credential: %w", err)
	}
	return del.Val(), nil
}

// DeleteByOwner watches the owner index so a login racing the revocation
// either lands before it (and is deleted) or after it.
func (s *CredentialStore) DeleteByOwner(ctx context.Context, owner string) (_ int64, err error) {
	ctx, end := database.TraceRedis(ctx, "DeleteOwnerRefreshCredentials", "WATCH SMEMBERS MULTI DEL")
	defer func() { end(err) }()

	idx := ownerKey(owner)
	var deleted int64

	txf := func(tx *redis.Tx) error {
		tokens, err := tx.SMembers(ctx, idx).Result()
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(tokens))
		for _, t := range tokens {
			keys = append(keys, tokenKey(t))
		}

		var del *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if len(keys) > 0 {
				del = p.Del(ctx, keys...)
			}
			p.Del(ctx, idx)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = 0
		if del != nil {
			deleted = del.Val()
		}
		return nil
	}

	for i := 0; i < maxWatchRetries; i++ {
		err = s.rdb.Watch(ctx, txf, idx)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("delete owner refresh credentials: %w", err)
	}
	return deleted, nil
}

// DeleteByOwnerIssuedBefore watches the owner index like DeleteByOwner but
// spares credentials created at or after cutoff. Index entries whose hash
// Redis already expired are dropped too.
func (s *CredentialStore) DeleteByOwnerIssuedBefore(ctx context.Context, owner string, cutoff time.Time) (_ int64, err error) {
	ctx, end := database.TraceRedis(ctx, "DeleteOwnerRefreshCredentialsBefore", "WATCH SMEMBERS HGET MULTI DEL SREM")
	defer func() { end(err) }()

	idx := ownerKey(owner)
	var deleted int64

	txf := func(tx *redis.Tx) error {
		tokens, err := tx.SMembers(ctx, idx).Result()
		if err != nil || len(tokens) == 0 {
			return err
		}
		created := make([]*redis.StringCmd, len(tokens))
		_, err = tx.Pipelined(ctx, func(p redis.Pipeliner) error {
			for i, t := range tokens {
				created[i] = p.HGet(ctx, tokenKey(t), "created_at")
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		var old []string
		for i, cmd := range created {
			raw, err := cmd.Result()
			if errors.Is(err, redis.Nil) {
				old = append(old, tokens[i])
				continue
			}
			at, perr := time.Parse(time.RFC3339Nano, raw)
			if err == nil && perr == nil && at.Before(cutoff) {
				old = append(old, tokens[i])
			}
		}
		deleted = 0
		if len(old) == 0 {
			return nil
		}

		keys := make([]string, len(old))
		members := make([]any, len(old))
		for i, t := range old {
			keys[i] = tokenKey(t)
			members[i] = t
		}
		var del *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			del = p.Del(ctx, keys...)
			p.SRem(ctx, idx, members...)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = del.Val()
		return nil
	}

	for i := 0; i < maxWatchRetries; i++ {
		err = s.rdb.Watch(ctx, txf, idx)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("delete owner refresh credentials before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return deleted, nil
}

// DeleteAll scans and removes every owner index, then every credential.
// The sweep is not one transaction: a login landing while it runs may
// survive, but it always keeps its owner index entry, so a later
// DeleteByOwner still reaches it.
func (s *CredentialStore) DeleteAll(ctx context.Context) (_ int64, err error) {
	ctx, end := database.TraceRedis(ctx, "DeleteAllRefreshCredentials", "SCAN DEL")
	defer func() { end(err) }()

	if _, err = s.deleteMatching(ctx, ownerPrefix+"*"); err != nil {
		return 0, err
	}
	if s.betweenSweeps != nil {
		s.betweenSweeps()
	}
	return s.deleteMatching(ctx, tokenPrefix+"*")
}

func (s *CredentialStore) deleteMatching(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return total, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return total, fmt.Errorf("delete %s: %w", pattern, err)
			}
			total += n
		}
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// DeleteExpiredByOwner drops index entries whose credential Redis already
// expired, plus credentials whose recorded expiry is at or before now.
func (s *CredentialStore) DeleteExpiredByOwner(ctx context.Context, owner string, now time.Time) (_ int64, err error) {
	ctx, end := database.TraceRedis(ctx, "PruneRefreshCredentials", "SMEMBERS HGET DEL SREM")
	defer func() { end(err) }()

	idx := ownerKey(owner)
	tokens, err := s.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("read owner index: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.StringCmd, len(tokens))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, t := range tokens {
			cmds[i] = p.HGet(ctx, tokenKey(t), "expires_at")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("read credential expiries: %w", err)
	}

	var stale []string
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, tokens[i])
			continue
		}
		exp, perr := time.Parse(time.RFC3339Nano, raw)
		if err == nil && perr == nil && !now.Before(exp) {
			stale = append(stale, tokens[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	members := make([]any, len(stale))
	keys := make([]string, len(stale))
	for i, t := range stale {
		members[i] = t
		keys[i] = tokenKey(t)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.SRem(ctx, idx, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune refresh credentials: %w", err)
	}
	return int64(len(stale)), nil
}
