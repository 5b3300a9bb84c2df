package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truck-event-scorer/internal/models"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()

	ctx := context.Background()
	d, err := New(ctx, DriverSQLite, filepath.Join(t.TempDir(), "keyed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate(ctx))

	return d
}

func TestDriverProfile(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	require.NoError(t, d.UpsertDriver(ctx, models.Driver{DriverID: 12, Name: "Jamie", Certified: "Y", WagePlan: "hours"}))
	require.NoError(t, d.UpsertDriver(ctx, models.Driver{DriverID: 11, Name: "George", Certified: "N", WagePlan: "miles"}))

	p, err := d.GetDriverProfile(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, models.DriverProfile{Certified: true, WagePlanIsMiles: false}, p)

	p, err = d.GetDriverProfile(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, models.DriverProfile{Certified: false, WagePlanIsMiles: true}, p)

	p, err = d.GetDriverProfile(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, models.DriverProfile{}, p)
}

func TestUpsertDriverReplaces(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	require.NoError(t, d.UpsertDriver(ctx, models.Driver{DriverID: 1, Name: "A", Certified: "N", WagePlan: "hours"}))
	require.NoError(t, d.UpsertDriver(ctx, models.Driver{DriverID: 1, Name: "A", Certified: "Y", WagePlan: "miles"}))

	p, err := d.GetDriverProfile(ctx, 1)
	require.NoError(t, err)
	assert.True(t, p.Certified)
	assert.True(t, p.WagePlanIsMiles)
}

func TestWeeklyUsage(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	n, err := d.UpsertTimesheetBatch(ctx, []models.Timesheet{
		{DriverID: 12, Week: 18, HoursLogged: 400, MilesLogged: 12000},
		{DriverID: 12, Week: 19, HoursLogged: 45, MilesLogged: 2300},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	u, err := d.GetWeeklyUsage(ctx, 12, 18)
	require.NoError(t, err)
	assert.Equal(t, models.WeeklyUsage{HoursLogged: 400, MilesLogged: 12000}, u)

	u, err = d.GetWeeklyUsage(ctx, 12, 20)
	require.NoError(t, err)
	assert.Equal(t, models.WeeklyUsage{}, u)

	stats, err := d.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats["total_timesheets"])
	assert.Equal(t, int64(0), stats["total_drivers"])
}

func TestQueryFailsWithoutSchema(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, DriverSQLite, filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.GetDriverProfile(ctx, 1)
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Database{driver: DriverPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &Database{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), "mysql", "")
	assert.Error(t, err)
}
