// Package access turns billing entitlements into head-end subscriber records.
package access

import (
	"context"
	"time"

	"github.com/unikmhz/npui-sub001/pkg/protocol"
)

// Entitlement is one package subscription of a billing entity
type Entitlement struct {
	ExternalID  int // head-end package slot, 0..127
	Active      bool
	Paid        bool
	QuotaExpiry *time.Time // end of the paid period, if any
}

// CardBinding ties a physical access card to an upstream head-end
type CardBinding struct {
	CardID uint32 // subscriber id on the head-end
	Source string
}

// Entity is a billing entity that owns entitlements and cards
type Entity struct {
	ID          uint
	Name        string
	Address     string
	Phone       string
	Description string
}

// EntitlementReader lists the entitlements of one entity
type EntitlementReader interface {
	Entitlements(ctx context.Context, entityID uint) ([]Entitlement, error)
}

// CardReader lists the access cards bound to one entity
type CardReader interface {
	Cards(ctx context.Context, entityID uint) ([]CardBinding, error)
}

// EntityLister enumerates every known entity
type EntityLister interface {
	Entities(ctx context.Context) ([]Entity, error)
}

// Collaborator is the full read side of the billing platform
type Collaborator interface {
	EntitlementReader
	CardReader
	EntityLister
}

// SubscriberWriter stores a record on the head-end
type SubscriberWriter interface {
	Set(kind protocol.DataKind, id uint32, record protocol.Record) error
}

// RunStore keeps the history of finished sync runs
type RunStore interface {
	SaveRun(ctx context.Context, run RunStatus) error
}

// Event types published while syncing
const (
	EventSyncStarted  = "sync_started"
	EventSyncFinished = "sync_finished"
	EventCardUpdated  = "card_updated"
	EventEntityFailed = "entity_failed"
)

// Event is a sync progress notification
type Event struct {
	Type     string    `json:"type"`
	RunID    string    `json:"run_id,omitempty"`
	EntityID uint      `json:"entity_id,omitempty"`
	CardID   uint32    `json:"card_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Error    string    `json:"error,omitempty"`
	Summary  *Summary  `json:"summary,omitempty"`
	Time     time.Time `json:"time"`
}

// EventSink receives sync events
type EventSink interface {
	Publish(Event)
}

// Summary counts the outcome of an UpdateAll pass
type Summary struct {
	Entities int `json:"entities"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
	Cards    int `json:"cards"`
}
