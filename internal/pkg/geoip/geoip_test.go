package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_MapsFields(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "success",
			"continent": "North America",
			"country": "Canada",
			"countryCode": "CA",
			"regionName": "Quebec",
			"city": "Montreal",
			"zip": "H2X",
			"lat": 45.5019,
			"lon": -73.5674,
			"isp": "Le Reseau",
			"org": "Le Reseau Inc",
			"as": "AS1234",
			"mobile": false,
			"proxy": true,
			"hosting": false
		}`))
	}))
	defer srv.Close()

	client := New(srv.URL, 2*time.Second)
	loc, err := client.Lookup(context.Background(), "203.0.113.5")

	require.NoError(t, err)
	assert.Equal(t, "/json/203.0.113.5", gotPath)
	assert.Equal(t, "fields=18575355", gotQuery)
	assert.Equal(t, "Canada", loc.Country)
	assert.Equal(t, "CA", loc.CountryCode)
	assert.Equal(t, "Montreal", loc.City)
	require.NotNil(t, loc.Lat)
	require.NotNil(t, loc.Lon)
	assert.InDelta(t, 45.5019, *loc.Lat, 0.0001)
	assert.InDelta(t, -73.5674, *loc.Lon, 0.0001)
	assert.True(t, loc.Proxy)
	assert.False(t, loc.Hosting)
}

func TestLookup_NilCoordinatesWhenAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "success", "country": "Canada"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, 2*time.Second)
	loc, err := client.Lookup(context.Background(), "203.0.113.5")

	require.NoError(t, err)
	assert.Nil(t, loc.Lat)
	assert.Nil(t, loc.Lon)
}

func TestLookup_ProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "fail", "message": "private range"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, 2*time.Second)
	_, err := client.Lookup(context.Background(), "192.168.1.1")

	assert.ErrorContains(t, err, "private range")
}

func TestLookup_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(srv.URL, 2*time.Second)
	_, err := client.Lookup(context.Background(), "203.0.113.5")

	assert.Error(t, err)
}
