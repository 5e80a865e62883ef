package models

import "time"

// Coordinates is a nullable lat/lon pair. Both pointers are nil when the
// geolocation provider returned nothing usable.
type Coordinates struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Valid reports whether both coordinates are present.
func (c Coordinates) Valid() bool { return c.Lat != nil && c.Lon != nil }

// OSInfo is the operating-system part of a user-agent breakdown.
type OSInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BrowserInfo is the browser part of a user-agent breakdown.
type BrowserInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Major   string `json:"major"`
}

// EngineInfo is the rendering-engine part of a user-agent breakdown.
type EngineInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DeviceInfo is the hardware part of a user-agent breakdown.
type DeviceInfo struct {
	Model  string `json:"model"`
	Type   string `json:"type"`
	Vendor string `json:"vendor"`
}

// CPUInfo is the CPU architecture part of a user-agent breakdown.
type CPUInfo struct {
	Architecture string `json:"architecture"`
}

// VisitEvent records a single beacon hit. Rows are append-only: ip and
// timestamp are write-once and never updated after insert.
type VisitEvent struct {
	Base
	IP        string    `json:"ip"        gorm:"size:64;not null;<-:create;index;index:idx_visits_ip_ts,composite:1"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;<-:create;index:idx_visits_ip_ts,composite:2"`

	District    string `json:"district"`
	City        string `json:"city"`
	RegionName  string `json:"regionName"`
	Country     string `json:"country"     gorm:"index"`
	CountryCode string `json:"countryCode" gorm:"size:8"`
	Continent   string `json:"continent"`
	Zip         string `json:"zip"         gorm:"size:16"`
	ISP         string `json:"isp"`
	Org         string `json:"org"`
	AS          string `json:"as"`

	Mobile  bool `json:"mobile"`
	Proxy   bool `json:"proxy"`
	Hosting bool `json:"hosting"`

	Origin string `json:"origin"`
	UA     string `json:"ua" gorm:"type:text"`

	Coordinates Coordinates `json:"coordinates" gorm:"embedded;embeddedPrefix:coord_"`
	OS          OSInfo      `json:"os"          gorm:"embedded;embeddedPrefix:os_"`
	Browser     BrowserInfo `json:"browser"     gorm:"embedded;embeddedPrefix:browser_"`
	Engine      EngineInfo  `json:"engine"      gorm:"embedded;embeddedPrefix:engine_"`
	Device      DeviceInfo  `json:"device"      gorm:"embedded;embeddedPrefix:device_"`
	CPU         CPUInfo     `json:"cpu"         gorm:"embedded;embeddedPrefix:cpu_"`

	VisitorID *string `json:"visitorId,omitempty" gorm:"type:char(36);index"`
}

func (VisitEvent) TableName() string { return "visits" }
