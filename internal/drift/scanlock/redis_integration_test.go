//go:build integration

package scanlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crosswalk/internal/drift/scanlock"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/testutil/containers"
)

type RedisLockSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	lock  *scanlock.RedisLock
}

func TestRedisLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.lock = scanlock.NewRedisLock(s.redis.Client)
}

func (s *RedisLockSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockSuite) TestTryAcquireIsExclusivePerKey() {
	ctx := context.Background()
	key := scanlock.Key(id.NewFrameworkID(), id.NewVersionID(), id.NewVersionID())

	ok, err := s.lock.TryAcquire(ctx, key, time.Minute)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.lock.TryAcquire(ctx, key, time.Minute)
	s.Require().NoError(err)
	s.False(ok)

	other := scanlock.Key(id.NewFrameworkID(), id.NewVersionID(), id.NewVersionID())
	ok, err = s.lock.TryAcquire(ctx, other, time.Minute)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisLockSuite) TestReleaseFreesTheKey() {
	ctx := context.Background()
	key := scanlock.Key(id.NewFrameworkID(), id.NewVersionID(), id.NewVersionID())

	ok, err := s.lock.TryAcquire(ctx, key, time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(s.lock.Release(ctx, key))

	ok, err = s.lock.TryAcquire(ctx, key, time.Minute)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisLockSuite) TestTTLExpiryFreesAbandonedLock() {
	ctx := context.Background()
	key := scanlock.Key(id.NewFrameworkID(), id.NewVersionID(), id.NewVersionID())

	ok, err := s.lock.TryAcquire(ctx, key, 300*time.Millisecond)
	s.Require().NoError(err)
	s.Require().True(ok)

	time.Sleep(500 * time.Millisecond)

	ok, err = s.lock.TryAcquire(ctx, key, time.Minute)
	s.Require().NoError(err)
	s.True(ok, "a crashed scanner's lock expires with the TTL")
}
