// Package enrich resolves the side-channel attributes a truck event is scored with.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"truck-event-scorer/internal/db"
	"truck-event-scorer/internal/models"
)

// ErrEnrichmentUnavailable is returned when the keyed store cannot be reached
// or a lookup query fails.
var ErrEnrichmentUnavailable = errors.New("enrichment unavailable")

// Enricher resolves driver attributes from the keyed store
type Enricher interface {
	LookupDriverProfile(ctx context.Context, driverID int) (models.DriverProfile, error)
	LookupWeeklyUsage(ctx context.Context, driverID, week int) (models.WeeklyUsage, error)
}

// Conn is one open keyed-store connection
type Conn interface {
	GetDriverProfile(ctx context.Context, driverID int) (models.DriverProfile, error)
	GetWeeklyUsage(ctx context.Context, driverID, week int) (models.WeeklyUsage, error)
	Close() error
}

// Dialer opens a keyed-store connection
type Dialer func(ctx context.Context) (Conn, error)

// SQLDialer dials the keyed store with database/sql
func SQLDialer(driver, dsn string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, err := db.New(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Source looks attributes up in the keyed store. Every lookup opens its own
// connection and closes it before returning.
type Source struct {
	dial   Dialer
	logger zerolog.Logger
}

// NewSource creates a keyed-store source
func NewSource(dial Dialer, logger zerolog.Logger) *Source {
	return &Source{
		dial:   dial,
		logger: logger.With().Str("component", "enrich").Logger(),
	}
}

// LookupDriverProfile returns certification status and wage plan for a driver
func (s *Source) LookupDriverProfile(ctx context.Context, driverID int) (models.DriverProfile, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return models.DriverProfile{}, fmt.Errorf("%w: connect: %v", ErrEnrichmentUnavailable, err)
	}
	defer s.close(conn)

	profile, err := conn.GetDriverProfile(ctx, driverID)
	if err != nil {
		return models.DriverProfile{}, fmt.Errorf("%w: driver %d profile: %v", ErrEnrichmentUnavailable, driverID, err)
	}
	return profile, nil
}

// LookupWeeklyUsage returns hours and miles logged by a driver in an ISO week
func (s *Source) LookupWeeklyUsage(ctx context.Context, driverID, week int) (models.WeeklyUsage, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return models.WeeklyUsage{}, fmt.Errorf("%w: connect: %v", ErrEnrichmentUnavailable, err)
	}
	defer s.close(conn)

	usage, err := conn.GetWeeklyUsage(ctx, driverID, week)
	if err != nil {
		return models.WeeklyUsage{}, fmt.Errorf("%w: driver %d week %d usage: %v", ErrEnrichmentUnavailable, driverID, week, err)
	}

	s.logger.Debug().
		Int("driver_id", driverID).
		Int("week", week).
		Float64("hours_logged", usage.HoursLogged).
		Float64("miles_logged", usage.MilesLogged).
		Msg("Weekly usage resolved")

	return usage, nil
}

func (s *Source) close(conn Conn) {
	if err := conn.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close keyed store connection")
	}
}

// Week returns the ISO-8601 week number of t in t's location
func Week(t time.Time) int {
	_, week := t.ISOWeek()
	return week
}

var _ Enricher = (*Source)(nil)
