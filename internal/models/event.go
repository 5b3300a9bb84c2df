package models

import (
	"fmt"
	"time"
)

// Event represents a single decoded truck event
type Event struct {
	EventTime     time.Time `json:"event_time"`
	TruckID       int       `json:"truck_id"`
	DriverID      int       `json:"driver_id"`
	DriverName    string    `json:"driver_name"`
	RouteID       int       `json:"route_id"`
	RouteName     string    `json:"route_name"`
	EventType     string    `json:"event_type"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	CorrelationID int64     `json:"correlation_id"`
	EventKey      string    `json:"event_key"`
}

// Values returns the decoded fields in output order:
// driverId, truckId, eventTime, eventType, longitude, latitude, eventKey,
// correlationId, driverName, routeId, routeName.
func (e *Event) Values() []interface{} {
	return []interface{}{
		e.DriverID,
		e.TruckID,
		e.EventTime,
		e.EventType,
		e.Longitude,
		e.Latitude,
		e.EventKey,
		e.CorrelationID,
		e.DriverName,
		e.RouteID,
		e.RouteName,
	}
}

// String renders the event the way it appears in audit reports
func (e *Event) String() string {
	return fmt.Sprintf("driverId=%d truckId=%d eventTime=%s eventType=%s longitude=%v latitude=%v eventKey=%s correlationId=%d driverName=%s routeId=%d routeName=%s",
		e.DriverID, e.TruckID, e.EventTime.Format(EventTimeLayout), e.EventType,
		e.Longitude, e.Latitude, e.EventKey, e.CorrelationID,
		e.DriverName, e.RouteID, e.RouteName)
}

// EventTimeLayout is the wire layout of the eventTime field. Fractional
// seconds are optional when parsing.
const EventTimeLayout = "2006-01-02 15:04:05.999999999"
