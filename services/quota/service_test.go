package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"watchearn/pkg/clock"
	"watchearn/pkg/config"
	"watchearn/pkg/errutil"
	"watchearn/services/account"
	"watchearn/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db    *gorm.DB
	clock *clock.Fixed
	svc   *Service
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &account.Account{})
	cfg := &config.Config{DailyVideoLimit: limit}
	cfg.Store.Timeout = 5 * time.Second

	fixed := clock.NewFixed(time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC))
	accounts := account.NewService(account.ServiceParams{DB: db, Config: cfg})
	_, err := accounts.Open(context.Background(), "u1")
	require.NoError(t, err)

	calendar, err := clock.NewCalendar(fixed, cfg)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		DB:       db,
		Config:   cfg,
		Calendar: calendar,
		Accounts: accounts,
	})
	return &fixture{db: db, clock: fixed, svc: svc}
}

func (f *fixture) consume(t *testing.T, userID string) (*Status, error) {
	t.Helper()
	_, day := f.svc.calendar.Today()

	var st *Status
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := f.svc.RefreshTx(context.Background(), tx, userID, day); err != nil {
			return err
		}
		var err error
		st, err = f.svc.ConsumeTx(context.Background(), tx, userID, day)
		return err
	})
	return st, err
}

func TestNewStatus(t *testing.T) {
	cases := []struct {
		name      string
		watched   int
		limit     int
		remaining int
		allowed   bool
	}{
		{name: "fresh", watched: 0, limit: 30, remaining: 30, allowed: true},
		{name: "last slot", watched: 29, limit: 30, remaining: 1, allowed: true},
		{name: "exhausted", watched: 30, limit: 30, remaining: 0, allowed: false},
		{name: "limit lowered", watched: 30, limit: 10, remaining: 0, allowed: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := NewStatus(tc.watched, tc.limit, "2024-01-01")
			require.Equal(t, tc.remaining, st.Remaining)
			require.Equal(t, tc.allowed, st.Allowed)
		})
	}
}

func TestCheckAndRefreshFreshAccount(t *testing.T) {
	f := newFixture(t, 30)

	st, err := f.svc.CheckAndRefresh(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 0, st.VideosWatchedToday)
	require.Equal(t, 30, st.Remaining)
	require.True(t, st.Allowed)
	require.Equal(t, "2024-03-10", st.DayKey)
}

func TestCheckAndRefreshIsIdempotentWithinDay(t *testing.T) {
	f := newFixture(t, 30)

	_, err := f.consume(t, "u1")
	require.NoError(t, err)

	first, err := f.svc.CheckAndRefresh(context.Background(), "u1")
	require.NoError(t, err)
	second, err := f.svc.CheckAndRefresh(context.Background(), "u1")
	require.NoError(t, err)

	require.Equal(t, 1, first.VideosWatchedToday)
	require.Equal(t, *first, *second)
}

func TestCheckAndRefreshRollsOver(t *testing.T) {
	f := newFixture(t, 30)

	require.NoError(t, f.db.Model(&account.Account{}).Where("id = ?", "u1").Updates(map[string]any{
		"videos_watched_today": 30,
		"last_quota_day":       "2024-03-10",
	}).Error)

	st, err := f.svc.CheckAndRefresh(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, st.Allowed)

	f.clock.Advance(2 * time.Hour)

	st, err = f.svc.CheckAndRefresh(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "2024-03-11", st.DayKey)
	require.Equal(t, 0, st.VideosWatchedToday)
	require.Equal(t, 30, st.Remaining)
	require.True(t, st.Allowed)
}

func TestCheckAndRefreshUnknownUser(t *testing.T) {
	f := newFixture(t, 30)

	_, err := f.svc.CheckAndRefresh(context.Background(), "ghost")
	require.ErrorIs(t, err, errutil.ErrNotFound)

	_, err = f.svc.CheckAndRefresh(context.Background(), "")
	require.ErrorIs(t, err, errutil.ErrInvalidInput)
}

func TestConsumeStopsAtLimit(t *testing.T) {
	f := newFixture(t, 3)

	for i := 1; i <= 3; i++ {
		st, err := f.consume(t, "u1")
		require.NoError(t, err)
		require.Equal(t, i, st.VideosWatchedToday)
	}

	_, err := f.consume(t, "u1")
	require.ErrorIs(t, err, errutil.ErrQuotaExceeded)

	st, err := f.svc.CheckAndRefresh(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 3, st.VideosWatchedToday)
	require.False(t, st.Allowed)
}

func TestConsumeUnknownUser(t *testing.T) {
	f := newFixture(t, 3)

	_, err := f.consume(t, "ghost")
	require.ErrorIs(t, err, errutil.ErrNotFound)
}

func TestConsumeAcrossMidnight(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.consume(t, "u1")
	require.NoError(t, err)
	_, err = f.consume(t, "u1")
	require.ErrorIs(t, err, errutil.ErrQuotaExceeded)

	f.clock.Set(time.Date(2024, 3, 11, 0, 0, 1, 0, time.UTC))

	st, err := f.consume(t, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, st.VideosWatchedToday)
	require.Equal(t, "2024-03-11", st.DayKey)
}

func TestLaggingDayDoesNotResetCounter(t *testing.T) {
	f := newFixture(t, 1)

	f.clock.Set(time.Date(2024, 3, 11, 0, 0, 1, 0, time.UTC))
	_, err := f.consume(t, "u1")
	require.NoError(t, err)

	// A worker whose clock is still on the previous day.
	f.clock.Set(time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC))
	_, err = f.consume(t, "u1")
	require.ErrorIs(t, err, errutil.ErrTransientStoreFailure)

	st, err := f.svc.CheckAndRefresh(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "2024-03-11", st.DayKey)
	require.Equal(t, 1, st.VideosWatchedToday)
	require.False(t, st.Allowed)

	var acc account.Account
	require.NoError(t, f.db.First(&acc, "id = ?", "u1").Error)
	require.Equal(t, "2024-03-11", acc.LastQuotaDay)
	require.Equal(t, 1, acc.VideosWatchedToday)

	f.clock.Set(time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC))
	_, err = f.consume(t, "u1")
	require.ErrorIs(t, err, errutil.ErrQuotaExceeded)
}
