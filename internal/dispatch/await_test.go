package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/igloo/internal/clock"
	"github.com/dropDatabas3/igloo/internal/nip55"
)

type submitFunc func(ctx context.Context, req nip55.Request, cb Callback) (Outcome, error)

func (f submitFunc) SubmitWithOutcome(ctx context.Context, req nip55.Request, cb Callback) (Outcome, error) {
	return f(ctx, req, cb)
}

func TestAwait_ImmediateCallback(t *testing.T) {
	s := submitFunc(func(_ context.Context, req nip55.Request, cb Callback) (Outcome, error) {
		cb(nip55.Success(req, "v"))
		return CacheHit, nil
	})
	o, res, err := Await(context.Background(), s, clock.Real(), pubkeyReq("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, o)
	require.NotNil(t, res)
	assert.Equal(t, "v", res.Result)
}

func TestAwait_AsyncCallback(t *testing.T) {
	s := submitFunc(func(_ context.Context, req nip55.Request, cb Callback) (Outcome, error) {
		go func() {
			time.Sleep(5 * time.Millisecond)
			cb(nip55.Success(req, "later"))
		}()
		return Dispatched, nil
	})
	o, res, err := Await(context.Background(), s, clock.Real(), pubkeyReq("a"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, Dispatched, o)
	require.NotNil(t, res)
	assert.Equal(t, "later", res.Result)
}

func TestAwait_WaitExpires(t *testing.T) {
	s := submitFunc(func(context.Context, nip55.Request, Callback) (Outcome, error) {
		return Queued, nil
	})
	start := time.Now()
	o, res, err := Await(context.Background(), s, clock.Real(), pubkeyReq("a"), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Queued, o)
	assert.Nil(t, res)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestAwait_ContextCancelledStillSubmits(t *testing.T) {
	var sawCancelled bool
	s := submitFunc(func(ctx context.Context, _ nip55.Request, _ Callback) (Outcome, error) {
		sawCancelled = ctx.Err() != nil
		return Queued, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o, res, err := Await(ctx, s, clock.Real(), pubkeyReq("a"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Queued, o)
	assert.Nil(t, res)
	assert.False(t, sawCancelled)
}

func TestAwait_Rejected(t *testing.T) {
	boom := errors.New("bad")
	s := submitFunc(func(context.Context, nip55.Request, Callback) (Outcome, error) {
		return Invalid, boom
	})
	o, res, err := Await(context.Background(), s, nil, pubkeyReq("a"), time.Minute)
	assert.Equal(t, Invalid, o)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}
