package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"truck-event-scorer/internal/models"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Database wraps a connection to the keyed store
type Database struct {
	conn   *sql.DB
	driver string
}

// New opens and pings a connection to the keyed store
func New(ctx context.Context, driver, dsn string) (*Database, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		conn.SetMaxOpenConns(1) // SQLite works best with single writer
	}
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{conn: conn, driver: driver}, nil
}

// Migrate creates the drivers and timesheet tables
func (db *Database) Migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS drivers (
			driverid INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			certified TEXT NOT NULL,
			wage_plan TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS timesheet (
			driverid INTEGER NOT NULL,
			week INTEGER NOT NULL,
			hours_logged INTEGER NOT NULL,
			miles_logged INTEGER NOT NULL,
			PRIMARY KEY (driverid, week)
		)`,
	}

	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

// rebind rewrites ? placeholders to $n for postgres
func (db *Database) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GetDriverProfile returns certification and wage plan for a driver.
// An unknown driver yields the zero profile.
func (db *Database) GetDriverProfile(ctx context.Context, driverID int) (models.DriverProfile, error) {
	query := db.rebind(`SELECT certified, wage_plan FROM drivers WHERE driverid = ?`)

	var d models.Driver
	err := db.conn.QueryRowContext(ctx, query, driverID).Scan(&d.Certified, &d.WagePlan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DriverProfile{}, nil
	}
	if err != nil {
		return models.DriverProfile{}, err
	}
	return d.Profile(), nil
}

// GetWeeklyUsage returns hours and miles logged by a driver in a week.
// A missing timesheet yields zero usage.
func (db *Database) GetWeeklyUsage(ctx context.Context, driverID, week int) (models.WeeklyUsage, error) {
	query := db.rebind(`SELECT hours_logged, miles_logged FROM timesheet WHERE driverid = ? AND week = ?`)

	var u models.WeeklyUsage
	err := db.conn.QueryRowContext(ctx, query, driverID, week).Scan(&u.HoursLogged, &u.MilesLogged)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WeeklyUsage{}, nil
	}
	if err != nil {
		return models.WeeklyUsage{}, err
	}
	return u, nil
}

// UpsertDriver inserts or replaces a driver row
func (db *Database) UpsertDriver(ctx context.Context, d models.Driver) error {
	query := db.rebind(`
		INSERT INTO drivers (driverid, name, certified, wage_plan) VALUES (?, ?, ?, ?)
		ON CONFLICT (driverid) DO UPDATE SET
			name = excluded.name, certified = excluded.certified, wage_plan = excluded.wage_plan
	`)
	_, err := db.conn.ExecContext(ctx, query, d.DriverID, d.Name, d.Certified, d.WagePlan)
	return err
}

// UpsertTimesheetBatch inserts or replaces timesheet rows in one transaction
func (db *Database) UpsertTimesheetBatch(ctx context.Context, rows []models.Timesheet) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, db.rebind(`
		INSERT INTO timesheet (driverid, week, hours_logged, miles_logged) VALUES (?, ?, ?, ?)
		ON CONFLICT (driverid, week) DO UPDATE SET
			hours_logged = excluded.hours_logged, miles_logged = excluded.miles_logged
	`))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var count int64
	for _, ts := range rows {
		if _, err := stmt.ExecContext(ctx, ts.DriverID, ts.Week, ts.HoursLogged, ts.MilesLogged); err != nil {
			return count, err
		}
		count++
	}

	return count, tx.Commit()
}

// GetStats returns row counts for the keyed store tables
func (db *Database) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var drivers int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM drivers").Scan(&drivers); err != nil {
		return nil, err
	}
	stats["total_drivers"] = drivers

	var timesheets int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM timesheet").Scan(&timesheets); err != nil {
		return nil, err
	}
	stats["total_timesheets"] = timesheets

	return stats, nil
}
