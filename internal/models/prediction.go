package models

import "time"

// FeatureCount is the number of features the classifier was trained on
const FeatureCount = 7

// Feature positions. The order is part of the model artifact contract.
const (
	FeatureCertified = iota
	FeatureWagePlanMiles
	FeatureHoursLogged
	FeatureMilesLogged
	FeatureFoggy
	FeatureRainy
	FeatureWindy
)

// Scaling factors applied to usage features before scoring
const (
	HoursScale = 100.0
	MilesScale = 1000.0
)

// FeatureVector is the fixed-order, scaled classifier input
type FeatureVector [FeatureCount]float64

// Label is the classifier output class
type Label string

const (
	LabelNormal    Label = "normal"
	LabelViolation Label = "violation"
)

// LabelFor maps the binary classifier output to a Label
func LabelFor(score float64) Label {
	if score == 1.0 {
		return LabelViolation
	}
	return LabelNormal
}

// DriverProfile holds keyed-store attributes for a driver
type DriverProfile struct {
	Certified       bool `json:"certified"`
	WagePlanIsMiles bool `json:"wage_plan_is_miles"`
}

// WeeklyUsage holds logged hours and miles for a driver in one week
type WeeklyUsage struct {
	HoursLogged float64 `json:"hours_logged"`
	MilesLogged float64 `json:"miles_logged"`
}

// Weather holds ambient conditions at the time of an event
type Weather struct {
	Foggy bool `json:"foggy"`
	Rainy bool `json:"rainy"`
	Windy bool `json:"windy"`
}

// Prediction is the per-event classifier result
type Prediction struct {
	EventKey    string        `json:"event_key"`
	Label       Label         `json:"label"`
	Score       float64       `json:"score"`       // 0.0 or 1.0
	Probability float64       `json:"probability"` // raw sigmoid output
	Features    FeatureVector `json:"features"`
}

// IsViolation reports whether the prediction is the positive class
func (p Prediction) IsViolation() bool {
	return p.Label == LabelViolation
}

// EmittedRecordLayout formats the timeStamp field of emitted records
const EmittedRecordLayout = "1/2/06 3:04 PM"

// EmittedRecord is the augmented record sent downstream for each scored event
type EmittedRecord struct {
	Prediction  Label   `json:"prediction"`
	DriverName  string  `json:"driverName"`
	RouteName   string  `json:"routeName"`
	DriverID    int     `json:"driverId"`
	TruckID     int     `json:"truckId"`
	TimeStamp   string  `json:"timeStamp"`
	Longitude   float64 `json:"longitude"`
	Latitude    float64 `json:"latitude"`
	Certified   string  `json:"certified"`
	WagePlan    string  `json:"wagePlan"`
	HoursLogged float64 `json:"hours_logged"`
	MilesLogged float64 `json:"miles_logged"`
	IsFoggy     string  `json:"isFoggy"`
	IsRainy     string  `json:"isRainy"`
	IsWindy     string  `json:"isWindy"`
}

// NewEmittedRecord projects an event and its prediction into the downstream record
func NewEmittedRecord(e *Event, p Prediction) *EmittedRecord {
	fv := p.Features
	wagePlan := "hourly"
	if fv[FeatureWagePlanMiles] == 1 {
		wagePlan = "miles"
	}

	return &EmittedRecord{
		Prediction:  p.Label,
		DriverName:  e.DriverName,
		RouteName:   e.RouteName,
		DriverID:    e.DriverID,
		TruckID:     e.TruckID,
		TimeStamp:   e.EventTime.Format(EmittedRecordLayout),
		Longitude:   e.Longitude,
		Latitude:    e.Latitude,
		Certified:   YesNo(fv[FeatureCertified]),
		WagePlan:    wagePlan,
		HoursLogged: fv[FeatureHoursLogged] * HoursScale,
		MilesLogged: fv[FeatureMilesLogged] * MilesScale,
		IsFoggy:     YesNo(fv[FeatureFoggy]),
		IsRainy:     YesNo(fv[FeatureRainy]),
		IsWindy:     YesNo(fv[FeatureWindy]),
	}
}

// Values returns the record fields in their fixed downstream order
func (r *EmittedRecord) Values() []interface{} {
	return []interface{}{
		r.Prediction, r.DriverName, r.RouteName, r.DriverID, r.TruckID,
		r.TimeStamp, r.Longitude, r.Latitude, r.Certified, r.WagePlan,
		r.HoursLogged, r.MilesLogged, r.IsFoggy, r.IsRainy, r.IsWindy,
	}
}

// YesNo renders a 0/1 feature as Y/N
func YesNo(v float64) string {
	if v == 1 {
		return "Y"
	}
	return "N"
}

// AuditEntry describes a stored audit report
type AuditEntry struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
