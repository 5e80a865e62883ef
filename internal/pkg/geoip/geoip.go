package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"
	"time"
)

// queryFields is the ip-api.com field bitmask covering location, network,
// coordinates and the mobile/proxy/hosting classification flags.
const queryFields = "18575355"

// Location is the geolocation and network profile of one IP address.
// Coordinate pointers are nil when the provider returned nothing usable.
type Location struct {
	Continent   string   `json:"continent"`
	Country     string   `json:"country"`
	CountryCode string   `json:"countryCode"`
	Region      string   `json:"region"`
	RegionName  string   `json:"regionName"`
	City        string   `json:"city"`
	District    string   `json:"district"`
	Zip         string   `json:"zip"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	ISP         string   `json:"isp"`
	Org         string   `json:"org"`
	AS          string   `json:"as"`
	Mobile      bool     `json:"mobile"`
	Proxy       bool     `json:"proxy"`
	Hosting     bool     `json:"hosting"`
}

// Resolver looks up the location of an IP address.
type Resolver interface {
	Lookup(ctx context.Context, ip string) (*Location, error)
}

// Client queries the ip-api.com JSON endpoint with a bounded timeout.
type Client struct {
	endpoint string
	http     *http.Client
}

func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) Lookup(ctx context.Context, ip string) (*Location, error) {
	url := fmt.Sprintf("%s/json/%s?fields=%s", c.endpoint, neturl.PathEscape(ip), queryFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip lookup: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Location
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("geoip lookup: decode response: %w", err)
	}
	if payload.Status == "fail" {
		return nil, fmt.Errorf("geoip lookup failed for %s: %s", ip, payload.Message)
	}

	loc := payload.Location
	return &loc, nil
}
