package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/store"
)

func testRedis(t *testing.T) *store.Redis {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	r := store.NewRedis(addr)
	t.Cleanup(func() { r.Close() })
	require.True(t, r.Healthy(context.Background()), "redis at %s not reachable", addr)
	return r
}

func TestRedisGuard_AdmitOncePerSession(t *testing.T) {
	ctx := context.Background()
	r := testRedis(t)

	session := uuid.NewString()
	g := store.NewRedisGuard(r.Client, session, time.Minute)
	t.Cleanup(func() { g.Release(ctx) })

	ok, err := g.Admit(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Admit(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok, "second admit in the same session")

	ok, err = g.Admit(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, ok)

	other := store.NewRedisGuard(r.Client, uuid.NewString(), time.Minute)
	t.Cleanup(func() { other.Release(ctx) })
	ok, err = other.Admit(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok, "fresh session admits again")
}

func TestRedisGuard_ReleaseClearsSet(t *testing.T) {
	ctx := context.Background()
	r := testRedis(t)

	session := uuid.NewString()
	g := store.NewRedisGuard(r.Client, session, time.Minute)
	_, err := g.Admit(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, g.Release(ctx))

	ok, err := g.Admit(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, g.Release(ctx))
}

func TestSummaryCache_GetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	r := testRedis(t)
	c := store.NewSummaryCache(r.Client, time.Minute)

	course, student := uuid.NewString(), uuid.NewString()
	got, err := c.Get(ctx, course, student)
	require.NoError(t, err)
	assert.Nil(t, got)

	sum := attendance.Summary{CourseID: course, StudentID: student, AttendedCount: 4, TotalClasses: 10, AttendancePercentage: 40, LastAttended: "N/A"}
	gen, err := c.Generation(ctx, course, student)
	require.NoError(t, err)
	assert.Zero(t, gen)
	stored, err := c.SetIfCurrent(ctx, sum, gen)
	require.NoError(t, err)
	assert.True(t, stored)
	got, err = c.Get(ctx, course, student)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 40, got.AttendancePercentage)

	require.NoError(t, c.Invalidate(ctx, course, student))
	got, err = c.Get(ctx, course, student)
	require.NoError(t, err)
	assert.Nil(t, got)

	next, err := c.Generation(ctx, course, student)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)

	stored, err = c.SetIfCurrent(ctx, sum, gen)
	require.NoError(t, err)
	assert.False(t, stored, "fill from before the invalidation")
	got, err = c.Get(ctx, course, student)
	require.NoError(t, err)
	assert.Nil(t, got)
}
