// Package mapview turns hidden sites and claimed discoveries into the marker
// layers, summary cards and score header shown on the discovery map.
package mapview

import (
	"fmt"
	"strconv"

	"github.com/ppiankov/virasat/internal/model"
)

// MarkerKind separates the two marker populations
type MarkerKind string

const (
	KindUnclaimed MarkerKind = "unclaimed"
	KindClaimed   MarkerKind = "claimed"
)

// Pin colours per population
const (
	ColorUnclaimed = "gold"
	ColorClaimed   = "green"
)

// Marker is one pin on the map
type Marker struct {
	Key         string     `json:"key"`
	Kind        MarkerKind `json:"kind"`
	Color       string     `json:"color"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	// DiscoveryID links a claimed marker to its summary card
	DiscoveryID int64 `json:"discovery_id,omitempty"`
}

// ScoreHeader is the Guardian Rank banner
type ScoreHeader struct {
	Title string `json:"title"`
	Score int    `json:"score"`
	Label string `json:"label"`
}

// Map is everything the map screen renders
type Map struct {
	Header  ScoreHeader `json:"header"`
	Markers []Marker    `json:"markers"`
}

// Card is the summary shown for a selected claimed marker
type Card struct {
	ID        int64  `json:"id"`
	Image     string `json:"image"`
	Name      string `json:"name"`
	Era       string `json:"era"`
	Narrative string `json:"narrative"`
}

// Header builds the score banner for a collection
func Header(c model.DiscoveryCollection) ScoreHeader {
	score := c.Score()
	return ScoreHeader{
		Title: "Guardian Rank",
		Score: score,
		Label: fmt.Sprintf("%d XP", score),
	}
}

// Build lays out unclaimed sites first, then claimed discoveries in stored
// order. Discoveries without coordinates get no marker.
func Build(hidden []model.HiddenSite, c model.DiscoveryCollection) Map {
	markers := make([]Marker, 0, len(hidden)+len(c))

	for _, site := range hidden {
		markers = append(markers, Marker{
			Key:         "site-" + strconv.Itoa(site.ID),
			Kind:        KindUnclaimed,
			Color:       ColorUnclaimed,
			Latitude:    site.Lat,
			Longitude:   site.Long,
			Title:       site.Title,
			Description: site.Description,
		})
	}

	for i, rec := range c {
		if rec.Coords == nil {
			continue
		}
		key := "discovery-" + strconv.FormatInt(rec.ID, 10)
		if rec.ID == 0 {
			key = "discovery-idx-" + strconv.Itoa(i)
		}
		markers = append(markers, Marker{
			Key:         key,
			Kind:        KindClaimed,
			Color:       ColorClaimed,
			Latitude:    rec.Coords.Latitude,
			Longitude:   rec.Coords.Longitude,
			Title:       rec.Name,
			Description: rec.Era,
			DiscoveryID: rec.ID,
		})
	}

	return Map{Header: Header(c), Markers: markers}
}

// CardFor returns the summary card for a claimed discovery
func CardFor(c model.DiscoveryCollection, id int64) (Card, bool) {
	rec, ok := c.Find(id)
	if !ok {
		return Card{}, false
	}
	return NewCard(rec), true
}

// NewCard builds the summary card for rec
func NewCard(rec model.DiscoveryRecord) Card {
	return Card{
		ID:        rec.ID,
		Image:     rec.Image,
		Name:      rec.Name,
		Era:       rec.Era,
		Narrative: rec.Narrative,
	}
}
