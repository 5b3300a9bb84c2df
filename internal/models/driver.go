package models

// Driver is a row of the drivers table in the keyed store
type Driver struct {
	DriverID  int    `json:"driver_id"`
	Name      string `json:"name"`
	Certified string `json:"certified"` // Y or N
	WagePlan  string `json:"wage_plan"` // miles or hours
}

// Timesheet is a row of the timesheet table: usage for one driver and week
type Timesheet struct {
	DriverID    int `json:"driver_id"`
	Week        int `json:"week"`
	HoursLogged int `json:"hours_logged"`
	MilesLogged int `json:"miles_logged"`
}

// Profile converts the stored columns to a DriverProfile
func (d Driver) Profile() DriverProfile {
	return DriverProfile{
		Certified:       d.Certified == "Y",
		WagePlanIsMiles: d.WagePlan == "miles",
	}
}
