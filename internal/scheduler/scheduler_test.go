package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/clock"
	obsmetrics "github.com/smallbiznis/subscriptiond/internal/observability/metrics"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	planrepo "github.com/smallbiznis/subscriptiond/internal/plan/repository"
	planservice "github.com/smallbiznis/subscriptiond/internal/plan/service"
	subscriptiondomain "github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/subscriptiond/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/subscriptiond/internal/subscription/service"
	"github.com/smallbiznis/subscriptiond/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	subs    subscriptiondomain.Service
	plan    *plandomain.Plan
	metrics *obsmetrics.SchedulerMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fake := clock.NewFakeClock(t0)
	log := zaptest.NewLogger(t)

	plans := planservice.New(planservice.Params{DB: conn, Log: log, GenID: node, Clock: fake, Repo: planrepo.Provide()})
	plan, err := plans.Create(context.Background(), plandomain.CreateRequest{
		Name: "Starter", Price: 9.99, DurationDays: 30, Features: []string{"Basic content"},
	})
	require.NoError(t, err)

	return &fixture{
		db:    conn,
		node:  node,
		clock: fake,
		subs: subscriptionservice.New(subscriptionservice.Params{
			DB: conn, Log: log, GenID: node, Clock: fake,
			Repo: subscriptionrepo.Provide(), PlanSvc: plans,
		}),
		plan:    plan,
		metrics: obsmetrics.NewSchedulerMetrics(prometheus.NewRegistry(), obsmetrics.Config{Environment: "test"}),
	}
}

func (f *fixture) scheduler(t *testing.T, cfg Config, client *redis.Client) *Scheduler {
	t.Helper()
	s, err := New(Params{
		Log: zaptest.NewLogger(t), GenID: f.node, Clock: f.clock, SubSvc: f.subs,
		Config: cfg, Redis: client, Metrics: f.metrics,
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) subscribeUsers(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := f.node.Generate()
		require.NoError(t, f.db.Create(&authdomain.User{
			ID: id, Name: "u" + id.String(), Email: id.String() + "@example.com",
			PasswordHash: "x", Role: authdomain.RoleUser, CreatedAt: t0, UpdatedAt: t0,
		}).Error)
		_, err := f.subs.Subscribe(context.Background(), id, f.plan.ID.String())
		require.NoError(t, err)
	}
}

func (f *fixture) countStatus(t *testing.T, status subscriptiondomain.Status) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&subscriptiondomain.Subscription{}).Where("status = ?", status).Count(&n).Error)
	return n
}

func TestRunOnceDrainsLapsedInBatches(t *testing.T) {
	f := newFixture(t)
	f.subscribeUsers(t, 5)
	s := f.scheduler(t, Config{BatchSize: 2}, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int64(5), f.countStatus(t, subscriptiondomain.StatusActive))

	f.clock.Advance(31 * 24 * time.Hour)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int64(0), f.countStatus(t, subscriptiondomain.StatusActive))
	assert.Equal(t, int64(5), f.countStatus(t, subscriptiondomain.StatusExpired))
}

func TestRunOnceSkipsWhenAnotherReplicaHoldsTheLock(t *testing.T) {
	f := newFixture(t)
	f.subscribeUsers(t, 1)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set("scheduler:"+JobExpireLapsed, "other"))

	s := f.scheduler(t, Config{}, client)
	f.clock.Advance(31 * 24 * time.Hour)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int64(1), f.countStatus(t, subscriptiondomain.StatusActive))

	mr.Del("scheduler:" + JobExpireLapsed)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int64(1), f.countStatus(t, subscriptiondomain.StatusExpired))
	assert.False(t, mr.Exists("scheduler:"+JobExpireLapsed))
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(t, Config{JobTimeout: 5 * time.Millisecond}, nil)

	err := s.runJob(context.Background(), "slow", func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, err)
}
