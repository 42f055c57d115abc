package model

import (
	"errors"
	"time"
)

// PointsPerDiscovery is the score awarded for each claimed site
const PointsPerDiscovery = 500

// CapturedImage is a handle to a locally stored photo
type CapturedImage struct {
	URI        string    `json:"uri"`
	CapturedAt time.Time `json:"captured_at"`
}

// IsZero reports whether the handle points at nothing
func (c CapturedImage) IsZero() bool {
	return c.URI == ""
}

// Coordinates is a WGS84 position
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates are inside WGS84 bounds
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// DiscoveryRecord is a persisted claim. The verdict fields are flattened
// into the record, matching the stored JSON layout.
type DiscoveryRecord struct {
	ID        int64        `json:"id"`
	Image     string       `json:"image"`
	Coords    *Coordinates `json:"coords,omitempty"`
	Name      string       `json:"name"`
	Era       string       `json:"era"`
	Narrative string       `json:"narrative"`
}

// ErrNotClaimable is returned when building a record from a rejected verdict
var ErrNotClaimable = errors.New("verdict is not valid; only accepted sites can be claimed")

// NewDiscoveryRecord builds a record for an accepted verdict
func NewDiscoveryRecord(id int64, image string, coords Coordinates, verdict VerificationVerdict) (DiscoveryRecord, error) {
	if !verdict.Valid {
		return DiscoveryRecord{}, ErrNotClaimable
	}
	if err := verdict.Check(); err != nil {
		return DiscoveryRecord{}, err
	}
	c := coords
	return DiscoveryRecord{
		ID:        id,
		Image:     image,
		Coords:    &c,
		Name:      verdict.Name,
		Era:       verdict.Era,
		Narrative: verdict.Narrative,
	}, nil
}

// IDFromTime derives a record ID from a timestamp (milliseconds since epoch)
func IDFromTime(t time.Time) int64 {
	return t.UnixMilli()
}

// DiscoveryCollection is the ordered list of claims, oldest first
type DiscoveryCollection []DiscoveryRecord

// Score is the derived Guardian Rank score
func (c DiscoveryCollection) Score() int {
	return len(c) * PointsPerDiscovery
}

// Last returns the most recent record
func (c DiscoveryCollection) Last() (DiscoveryRecord, bool) {
	if len(c) == 0 {
		return DiscoveryRecord{}, false
	}
	return c[len(c)-1], true
}

// Find looks a record up by ID
func (c DiscoveryCollection) Find(id int64) (DiscoveryRecord, bool) {
	for _, r := range c {
		if r.ID == id {
			return r, true
		}
	}
	return DiscoveryRecord{}, false
}
