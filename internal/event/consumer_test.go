package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labqa/qualitylab/internal/domain"
	redisrepo "github.com/labqa/qualitylab/internal/repository/redis"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
	pkgkafka "github.com/labqa/qualitylab/pkg/kafka"
)

type fakeRevoker struct {
	owners  []string
	cutoffs []time.Time
	err     error
}

func (f *fakeRevoker) DeleteByOwnerIssuedBefore(_ context.Context, owner string, cutoff time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.owners = append(f.owners, owner)
	f.cutoffs = append(f.cutoffs, cutoff)
	return 2, nil
}

func identityEvent(t *testing.T, data any) *pkgkafka.Event {
	t.Helper()
	ev, err := pkgkafka.NewEvent(TypeIdentityChanged, "ana@lab.test", "user-admin", data)
	require.NoError(t, err)
	return ev
}

func TestIdentityHandler_Revokes(t *testing.T) {
	rev := &fakeRevoker{}
	h := NewIdentityHandler(rev, discardLogger())

	ev := identityEvent(t, IdentityChangedData{Email: "ana@lab.test", Reason: ReasonRoleChanged})
	require.NoError(t, h.Handle(context.Background(), ev))
	assert.Equal(t, []string{"ana@lab.test"}, rev.owners)
	assert.Equal(t, []time.Time{ev.OccurredAt}, rev.cutoffs)
}

func TestIdentityHandler_SparesSessionsOpenedAfterTheChange(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := redisrepo.NewCredentialStore(rdb)
	ctx := context.Background()

	ev := identityEvent(t, IdentityChangedData{Email: "ana@lab.test", Reason: ReasonRemoved})
	changedAt := ev.OccurredAt.Truncate(time.Millisecond)
	ev.OccurredAt = changedAt
	// The account was removed, re-registered and logged in again before
	// the event was consumed.
	require.NoError(t, store.Create(ctx, &domain.RefreshCredential{
		Token: "stale", Owner: "ana@lab.test",
		CreatedAt: changedAt.Add(-time.Minute), ExpiresAt: changedAt.Add(time.Hour),
	}))
	require.NoError(t, store.Create(ctx, &domain.RefreshCredential{
		Token: "fresh", Owner: "ana@lab.test",
		CreatedAt: changedAt.Add(time.Second), ExpiresAt: changedAt.Add(time.Hour),
	}))

	require.NoError(t, NewIdentityHandler(store, discardLogger()).Handle(ctx, ev))

	_, err := store.FindByToken(ctx, "stale")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	got, err := store.FindByToken(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "ana@lab.test", got.Owner)
}

func TestIdentityHandler_MissingTimestampRevokesAll(t *testing.T) {
	rev := &fakeRevoker{}
	ev := identityEvent(t, IdentityChangedData{Email: "ana@lab.test"})
	ev.OccurredAt = time.Time{}

	before := time.Now().UTC()
	require.NoError(t, NewIdentityHandler(rev, discardLogger()).Handle(context.Background(), ev))
	require.Len(t, rev.cutoffs, 1)
	assert.False(t, rev.cutoffs[0].Before(before))
}

func TestIdentityHandler_IgnoresOtherTypes(t *testing.T) {
	rev := &fakeRevoker{}
	ev, err := pkgkafka.NewEvent(TypeLoggedIn, "ana@lab.test", Source, LoggedInData{Email: "ana@lab.test"})
	require.NoError(t, err)

	require.NoError(t, NewIdentityHandler(rev, discardLogger()).Handle(context.Background(), ev))
	assert.Empty(t, rev.owners)
}

func TestIdentityHandler_BadPayload(t *testing.T) {
	rev := &fakeRevoker{}
	h := NewIdentityHandler(rev, discardLogger())

	ev := identityEvent(t, IdentityChangedData{})
	assert.Error(t, h.Handle(context.Background(), ev))

	ev.Data = json.RawMessage(`"not an object"`)
	assert.Error(t, h.Handle(context.Background(), ev))
	assert.Empty(t, rev.owners)
}

func TestIdentityHandler_StoreError(t *testing.T) {
	cause := errors.New("store down")
	h := NewIdentityHandler(&fakeRevoker{err: cause}, discardLogger())

	err := h.Handle(context.Background(), identityEvent(t, IdentityChangedData{Email: "ana@lab.test"}))
	assert.ErrorIs(t, err, cause)
}
