package data

import (
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// GPS is a position fix
type GPS struct {
	Lat    float64   `json:"lat"`
	Lon    float64   `json:"lng"`
	Alt    float64   `json:"alt"`
	Acc    float64   `json:"acc"`
	Spd    float64   `json:"spd"`
	Hdg    float64   `json:"hdg"`
	NumSat int64     `json:"numSat"`
	Time   time.Time `json:"ts"`
	Queued bool      `json:"-"`
}

// IsQueued implements Record
func (g GPS) IsQueued() bool { return g.Queued }

// WithQueued implements Record
func (g GPS) WithQueued(q bool) GPS {
	g.Queued = q
	return g
}

// nominal user equivalent range error used to turn HDOP into meters
const uereMeters = 5.0

// FromGGA fills position, altitude, and accuracy from a GGA sentence. It
// returns false if the sentence carries no fix.
func (g *GPS) FromGGA(gga nmea.GGA) bool {
	if gga.FixQuality == "" || gga.FixQuality == "0" {
		return false
	}
	g.Lat = gga.Latitude
	g.Lon = gga.Longitude
	g.Alt = gga.Altitude
	g.Acc = gga.HDOP * uereMeters
	g.NumSat = gga.NumSatellites
	return true
}

// FromRMC fills speed, heading, and the UTC timestamp from an RMC
// sentence. It returns false if the sentence is flagged invalid.
func (g *GPS) FromRMC(rmc nmea.RMC) bool {
	if rmc.Validity != "A" {
		return false
	}
	// knots to m/s
	g.Spd = rmc.Speed * 0.514444
	g.Hdg = rmc.Course
	if rmc.Date.Valid && rmc.Time.Valid {
		g.Time = time.Date(2000+rmc.Date.YY, time.Month(rmc.Date.MM),
			rmc.Date.DD, rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second,
			rmc.Time.Millisecond*int(time.Millisecond), time.UTC)
	}
	return true
}
