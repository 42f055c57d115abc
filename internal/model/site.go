package model

// HiddenSite is a fixed, not yet claimed point of interest shown on the map
type HiddenSite struct {
	ID          int     `json:"id"`
	Lat         float64 `json:"lat"`
	Long        float64 `json:"long"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

// HiddenSites returns the built-in unclaimed sites. Every call returns a new
// slice so callers cannot mutate the reference data.
func HiddenSites() []HiddenSite {
	return []HiddenSite{
		{ID: 1, Lat: 28.5355, Long: 77.3910, Title: "Unknown Stepwell", Description: "Unclaimed"},
		{ID: 2, Lat: 28.4595, Long: 77.0266, Title: "Ruined Colonial Post", Description: "Unclaimed"},
	}
}
