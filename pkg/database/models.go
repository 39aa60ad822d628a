package database

import (
	"time"

	"gorm.io/gorm"

	"github.com/unikmhz/npui-sub001/pkg/access"
)

// Entity is a billing account that owns entitlements and access cards
type Entity struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Name        string    `gorm:"size:64;index" json:"name"`
	Address     string    `gorm:"size:64" json:"address"`
	Phone       string    `gorm:"size:32" json:"phone"`
	Description string    `gorm:"size:64" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for Entity
func (Entity) TableName() string {
	return "access_entities"
}

// ToAccess converts the row to the sync domain type
func (e *Entity) ToAccess() access.Entity {
	return access.Entity{
		ID:          e.ID,
		Name:        e.Name,
		Address:     e.Address,
		Phone:       e.Phone,
		Description: e.Description,
	}
}

// Entitlement is one package subscription of an entity
type Entitlement struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	EntityID    uint       `gorm:"index;not null" json:"entity_id"`
	ExternalID  int        `gorm:"not null" json:"external_id"`
	Active      bool       `gorm:"not null" json:"active"`
	Paid        bool       `gorm:"not null" json:"paid"`
	QuotaExpiry *time.Time `json:"quota_expiry,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Entitlement
func (Entitlement) TableName() string {
	return "access_entitlements"
}

// AccessCard binds a head-end subscriber id to an entity
type AccessCard struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	EntityID  uint      `gorm:"index;not null" json:"entity_id"`
	CardID    uint32    `gorm:"uniqueIndex:idx_card_source;not null" json:"card_id"`
	Source    string    `gorm:"uniqueIndex:idx_card_source;size:32;not null" json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for AccessCard
func (AccessCard) TableName() string {
	return "access_cards"
}

// SyncRun is the persisted outcome of one sync run
type SyncRun struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	RunID     string    `gorm:"uniqueIndex;size:36;not null" json:"run_id"`
	Result    string    `gorm:"index;size:16;not null" json:"result"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	Entities  int       `gorm:"default:0" json:"entities"`
	Updated   int       `gorm:"default:0" json:"updated"`
	Failed    int       `gorm:"default:0" json:"failed"`
	Cards     int       `gorm:"default:0" json:"cards"`
	StartTime time.Time `gorm:"index;not null" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	Duration  float64   `gorm:"not null" json:"duration"` // seconds
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for SyncRun
func (SyncRun) TableName() string {
	return "sync_runs"
}

// BeforeCreate hook to ensure the timestamps are set
func (r *SyncRun) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.StartTime.IsZero() {
		r.StartTime = r.CreatedAt
	}
	if r.EndTime.IsZero() {
		r.EndTime = r.CreatedAt
	}
	if r.Duration == 0 {
		r.Duration = r.EndTime.Sub(r.StartTime).Seconds()
	}
	return nil
}

// SyncRunFrom converts a finished run status to a row
func SyncRunFrom(run access.RunStatus) *SyncRun {
	return &SyncRun{
		RunID:     run.RunID,
		Result:    run.Result,
		Error:     run.Error,
		Entities:  run.Summary.Entities,
		Updated:   run.Summary.Updated,
		Failed:    run.Summary.Failed,
		Cards:     run.Summary.Cards,
		StartTime: run.Started,
		EndTime:   run.Finished,
	}
}
