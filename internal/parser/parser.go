package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"truck-event-scorer/internal/models"
)

// ErrMalformedRecord is returned for any payload that does not match the
// fixed positional schema.
var ErrMalformedRecord = errors.New("malformed record")

// FieldCount is the number of |-delimited fields in a payload
const FieldCount = 10

const (
	fieldEventTime = iota
	fieldTruckID
	fieldDriverID
	fieldDriverName
	fieldRouteID
	fieldRouteName
	fieldEventType
	fieldLatitude
	fieldLongitude
	fieldCorrelationID
)

var fieldNames = [FieldCount]string{
	"eventTime", "truckId", "driverId", "driverName", "routeId",
	"routeName", "eventType", "latitude", "longitude", "correlationId",
}

// eventTimeLayout accepts optional fractional seconds when parsing
const eventTimeLayout = "2006-01-02 15:04:05"

// Parser decodes truck event payloads
type Parser struct {
	location *time.Location
}

// NewParser creates a parser that interprets event times in loc.
// A nil loc means UTC.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{location: loc}
}

// Location returns the zone event times are interpreted in
func (p *Parser) Location() *time.Location {
	return p.location
}

// Decode parses a single payload:
// eventTime|truckId|driverId|driverName|routeId|routeName|eventType|latitude|longitude|correlationId
func (p *Parser) Decode(payload []byte) (*models.Event, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedRecord)
	}

	line := strings.TrimRight(string(payload), "\r\n")
	parts := strings.Split(line, "|")
	if len(parts) != FieldCount {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedRecord, FieldCount, len(parts))
	}

	var (
		e   models.Event
		err error
	)

	e.EventTime, err = time.ParseInLocation(eventTimeLayout, parts[fieldEventTime], p.location)
	if err != nil {
		return nil, fieldError(fieldEventTime, err)
	}
	if e.TruckID, err = strconv.Atoi(parts[fieldTruckID]); err != nil {
		return nil, fieldError(fieldTruckID, err)
	}
	if e.DriverID, err = strconv.Atoi(parts[fieldDriverID]); err != nil {
		return nil, fieldError(fieldDriverID, err)
	}
	e.DriverName = parts[fieldDriverName]
	if e.RouteID, err = strconv.Atoi(parts[fieldRouteID]); err != nil {
		return nil, fieldError(fieldRouteID, err)
	}
	e.RouteName = parts[fieldRouteName]
	e.EventType = parts[fieldEventType]
	if e.Latitude, err = strconv.ParseFloat(parts[fieldLatitude], 64); err != nil {
		return nil, fieldError(fieldLatitude, err)
	}
	if e.Longitude, err = strconv.ParseFloat(parts[fieldLongitude], 64); err != nil {
		return nil, fieldError(fieldLongitude, err)
	}
	if e.CorrelationID, err = strconv.ParseInt(parts[fieldCorrelationID], 10, 64); err != nil {
		return nil, fieldError(fieldCorrelationID, err)
	}

	e.EventKey = EventKey(e.DriverID, e.TruckID, e.EventTime)

	return &e, nil
}

func fieldError(idx int, err error) error {
	return fmt.Errorf("%w: field %d (%s): %v", ErrMalformedRecord, idx, fieldNames[idx], err)
}

// EventKey builds driverId|truckId|reverseTime. The reversed time component
// sorts newer events first in a keyed store.
func EventKey(driverID, truckID int, eventTime time.Time) string {
	reverseTime := math.MaxInt64 - eventTime.UnixMilli()
	return fmt.Sprintf("%d|%d|%d", driverID, truckID, reverseTime)
}

// Encode renders an event back into its wire form
func Encode(e *models.Event) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s|%d|%d|%s|%d|%s|%s|%s|%s|%d",
		e.EventTime.Format("2006-01-02 15:04:05.000"),
		e.TruckID, e.DriverID, e.DriverName, e.RouteID, e.RouteName, e.EventType,
		strconv.FormatFloat(e.Latitude, 'f', -1, 64),
		strconv.FormatFloat(e.Longitude, 'f', -1, 64),
		e.CorrelationID)
	return b.Bytes()
}

// ReadPayloads returns the non-empty, non-comment lines of r
func ReadPayloads(r io.Reader) ([][]byte, error) {
	var payloads [][]byte
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		payloads = append(payloads, []byte(line))
	}

	return payloads, scanner.Err()
}

// ReadFile reads payload lines from a file
func ReadFile(filename string) ([][]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ReadPayloads(file)
}
