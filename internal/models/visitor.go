package models

import "time"

// DefaultNickname is assigned to freshly minted visitor identities until an
// operator renames them.
const DefaultNickname = "unknown"

// VisitorIdentity correlates repeat visits to one anonymous visitor. The
// token is minted once and never changes; the First* columns are a snapshot
// of the minting request and are write-once.
type VisitorIdentity struct {
	VisitorID      string    `json:"visitorId"      gorm:"type:char(36);primaryKey"`
	Nickname       string    `json:"nickname"       gorm:"size:64"`
	VisitCount     int64     `json:"visitCount"     gorm:"not null"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`

	FirstIP      string `json:"firstIp"      gorm:"size:64;<-:create"`
	FirstCountry string `json:"firstCountry" gorm:"<-:create"`
	FirstRegion  string `json:"firstRegion"  gorm:"<-:create"`
	FirstCity    string `json:"firstCity"    gorm:"<-:create"`
}

func (VisitorIdentity) TableName() string { return "visitors" }
