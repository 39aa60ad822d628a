package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/unikmhz/npui-sub001/pkg/logger"
	"github.com/unikmhz/npui-sub001/pkg/metrics"
	"github.com/unikmhz/npui-sub001/pkg/protocol"
)

// UpdaterConfig selects the cards to write and throttles the head-end
type UpdaterConfig struct {
	Source    string
	RateLimit float64 // writes per second, 0 = unlimited
	Burst     int
}

// Updater writes the access state of billing entities to the head-end
type Updater struct {
	collab  Collaborator
	writer  SubscriberWriter
	source  string
	limiter *rate.Limiter
	log     *logger.Logger
	metrics *metrics.Collector
	events  EventSink
	runID   string
	now     func() time.Time
}

// NewUpdater creates an Updater. events and m may be nil.
func NewUpdater(collab Collaborator, writer SubscriberWriter, cfg UpdaterConfig, log *logger.Logger, m *metrics.Collector, events EventSink) *Updater {
	if log == nil {
		log = logger.Nop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Updater{
		collab:  collab,
		writer:  writer,
		source:  cfg.Source,
		limiter: limiter,
		log:     log.WithComponent("access.updater"),
		metrics: m,
		events:  events,
		now:     time.Now,
	}
}

// Subscriber derives the head-end record of entity from its entitlements.
// Any active free entitlement makes the card always active; otherwise any
// active paid entitlement gates it by the latest quota expiry.
func (u *Updater) Subscriber(entity Entity, entitlements []Entitlement) *protocol.Subscriber {
	var (
		mask       protocol.Mask
		freeActive bool
		paidActive bool
		expiry     protocol.Date
	)
	for _, e := range entitlements {
		if !e.Active {
			continue
		}
		if err := mask.Set(e.ExternalID); err != nil {
			u.log.Warn("Skipping entitlement outside the package range",
				logger.Uint("entity_id", entity.ID),
				logger.Int("external_id", e.ExternalID))
			continue
		}
		if !e.Paid {
			freeActive = true
			continue
		}
		paidActive = true
		if e.QuotaExpiry != nil {
			if d := protocol.DateOf(*e.QuotaExpiry); expiry.Before(d) {
				expiry = d
			}
		}
	}

	sub := &protocol.Subscriber{
		Name:        entity.Name,
		Address:     entity.Address,
		Phone:       entity.Phone,
		Description: entity.Description,
		Mask:        mask,
	}
	switch {
	case freeActive:
		sub.AdminStatus = protocol.AdminActive
		sub.Active = true
	case paidActive:
		// Without any quota expiry the date stays 0000-00-00 and the
		// head-end gates the card on it.
		sub.AdminStatus = protocol.AdminByExpiry
		sub.Active = true
		sub.Expiry = expiry
		sub.Expired = !expiry.IsZero() && expiry.Before(protocol.DateOf(u.now()))
	default:
		sub.AdminStatus = protocol.AdminInactive
	}
	return sub
}

// UpdateAccessEntity writes the derived record to every card of entity bound
// to the configured source. It returns the number of cards written.
func (u *Updater) UpdateAccessEntity(ctx context.Context, entity Entity) (int, error) {
	entitlements, err := u.collab.Entitlements(ctx, entity.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to read entitlements of entity %d: %w", entity.ID, err)
	}
	cards, err := u.collab.Cards(ctx, entity.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to read cards of entity %d: %w", entity.ID, err)
	}

	sub := u.Subscriber(entity, entitlements)
	written := 0
	var errs []error
	for _, card := range cards {
		if card.Source != u.source {
			continue
		}
		if err := u.limiter.Wait(ctx); err != nil {
			return written, errors.Join(append(errs, err)...)
		}
		if err := u.writer.Set(protocol.KindSubscribers, card.CardID, sub); err != nil {
			err = fmt.Errorf("card %d: %w", card.CardID, err)
			if errors.Is(err, protocol.ErrTransport) {
				return written, errors.Join(append(errs, err)...)
			}
			errs = append(errs, err)
			continue
		}
		written++
		u.metrics.CardWritten()
		u.publish(Event{Type: EventCardUpdated, EntityID: entity.ID, CardID: card.CardID, Status: sub.AdminStatus.String()})
		u.log.Debug("Card updated",
			logger.Uint("entity_id", entity.ID),
			logger.Uint32("card_id", card.CardID),
			logger.String("status", sub.AdminStatus.String()),
			logger.String("mask", sub.Mask.String()))
	}
	return written, errors.Join(errs...)
}

// UpdateAll applies UpdateAccessEntity to every entity. Per-entity failures
// are collected; a transport failure or a cancelled ctx stops the pass.
func (u *Updater) UpdateAll(ctx context.Context) (Summary, error) {
	var sum Summary
	entities, err := u.collab.Entities(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to list entities: %w", err)
	}

	var errs []error
	for _, entity := range entities {
		sum.Entities++
		cards, err := u.UpdateAccessEntity(ctx, entity)
		sum.Cards += cards
		if err == nil {
			sum.Updated++
			u.metrics.EntityProcessed("ok")
			continue
		}

		sum.Failed++
		u.metrics.EntityProcessed("error")
		errs = append(errs, fmt.Errorf("entity %d: %w", entity.ID, err))
		u.publish(Event{Type: EventEntityFailed, EntityID: entity.ID, Error: err.Error()})
		u.log.Warn("Entity update failed", logger.Uint("entity_id", entity.ID), logger.Error(err))

		if errors.Is(err, protocol.ErrTransport) || ctx.Err() != nil {
			break
		}
	}
	return sum, errors.Join(errs...)
}

func (u *Updater) publish(ev Event) {
	if u.events == nil {
		return
	}
	ev.RunID = u.runID
	ev.Time = u.now()
	u.events.Publish(ev)
}
