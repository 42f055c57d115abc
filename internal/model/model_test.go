package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerdictConstructors(t *testing.T) {
	v := Accept(" Lost Stepwell ", "Mughal", "Carved steps.")
	assert.True(t, v.Valid)
	assert.Equal(t, "Lost Stepwell", v.Name)
	assert.NoError(t, v.Check())

	r := Reject("")
	assert.Equal(t, DefaultRejectionReason, r.RejectionReason)
	assert.NoError(t, r.Check())

	f := FallbackVerdict()
	assert.True(t, f.IsFallback())
	assert.False(t, Reject("This is a cat.").IsFallback())
}

func TestVerdictCheck_Mixed(t *testing.T) {
	bad := []VerificationVerdict{
		{Valid: true, Name: "a", Era: "b", Narrative: "c", RejectionReason: "d"},
		{Valid: true, Name: "a"},
		{Valid: false, RejectionReason: "x", Name: "a"},
		{Valid: false},
	}
	for _, v := range bad {
		assert.Error(t, v.Check(), "%+v", v)
	}
}

func TestVerdictWireFormat(t *testing.T) {
	data, err := json.Marshal(FallbackVerdict())
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid":false,"rejection_reason":"AI connection failed. Unable to verify authenticity. Please check your internet or try again."}`, string(data))

	data, err = json.Marshal(Accept("Red Fort", "Mughal", "Seat of emperors."))
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid":true,"name":"Red Fort","era":"Mughal","narrative":"Seat of emperors."}`, string(data))
}

func TestNewDiscoveryRecord(t *testing.T) {
	coords := Coordinates{Latitude: 28.5, Longitude: 77.3}

	rec, err := NewDiscoveryRecord(1, "file:///x.jpg", coords, Accept("Lost Stepwell", "Mughal", "Steps."))
	require.NoError(t, err)
	require.NotNil(t, rec.Coords)
	assert.Equal(t, coords, *rec.Coords)
	assert.Equal(t, "Lost Stepwell", rec.Name)

	_, err = NewDiscoveryRecord(1, "file:///x.jpg", coords, Reject("cat"))
	assert.True(t, errors.Is(err, ErrNotClaimable))

	_, err = NewDiscoveryRecord(1, "file:///x.jpg", coords, VerificationVerdict{Valid: true, Name: "x"})
	assert.Error(t, err)
}

func TestDiscoveryCollection(t *testing.T) {
	var empty DiscoveryCollection
	assert.Equal(t, 0, empty.Score())
	_, ok := empty.Last()
	assert.False(t, ok)

	c := DiscoveryCollection{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}}
	assert.Equal(t, 1500, c.Score())

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, int64(3), last.ID)

	found, ok := c.Find(2)
	require.True(t, ok)
	assert.Equal(t, "b", found.Name)
	_, ok = c.Find(9)
	assert.False(t, ok)
}

func TestCoordinatesValid(t *testing.T) {
	assert.True(t, Coordinates{Latitude: 28.5, Longitude: 77.3}.Valid())
	assert.False(t, Coordinates{Latitude: 91}.Valid())
	assert.False(t, Coordinates{Longitude: -181}.Valid())
}

func TestIDFromTime(t *testing.T) {
	assert.Equal(t, int64(1700000000123), IDFromTime(time.UnixMilli(1700000000123)))
}

func TestHiddenSites(t *testing.T) {
	sites := HiddenSites()
	require.Len(t, sites, 2)
	assert.Equal(t, "Unknown Stepwell", sites[0].Title)
	assert.Equal(t, "Unclaimed", sites[1].Description)

	sites[0].Title = "mutated"
	assert.Equal(t, "Unknown Stepwell", HiddenSites()[0].Title, "callers get a fresh copy")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, 30, cfg.AI.Timeout)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "none", cfg.Location.Provider, "no position is assumed until one is configured")
}
