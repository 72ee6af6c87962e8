package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleOnce(t *testing.T) {
	f, settle := New[int](nil)
	settle(1, nil)
	settle(2, errors.New("ignored"))

	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestAbortSurvivesChaining(t *testing.T) {
	cancelled := 0
	root, settle := New[string](func() { cancelled++ })

	chained := Finally(Then(root, func(s string, err error) (int, error) {
		return len(s), err
	}), func() {})

	assert.False(t, chained.Aborted())
	chained.Abort()
	chained.Abort()

	assert.True(t, root.Aborted())
	assert.True(t, chained.Aborted())
	assert.Equal(t, 1, cancelled)

	settle("abc", nil)
	n, err := chained.Result()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestResolvedIsShareable(t *testing.T) {
	shared := Resolved([]byte{})
	shared.Abort()

	assert.False(t, shared.Aborted())
	v, err := shared.Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestGoAbortCancelsContext(t *testing.T) {
	f := Go(context.Background(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	f.Abort()
	_, err := f.Result()
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, f.Aborted())
}

func TestWaitHonoursContext(t *testing.T) {
	f, _ := New[int](nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.Aborted())
}

func TestRejected(t *testing.T) {
	boom := errors.New("boom")
	_, err := Rejected[int](boom).Result()
	assert.ErrorIs(t, err, boom)
}
