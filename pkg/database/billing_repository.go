package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unikmhz/npui-sub001/pkg/access"
)

// BillingRepository reads and maintains billing entities, their
// entitlements and access cards. It is the access.Collaborator of the
// sync daemon.
type BillingRepository struct {
	db *gorm.DB
}

var _ access.Collaborator = (*BillingRepository)(nil)

// NewBillingRepository creates a new billing repository
func NewBillingRepository(db *gorm.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

// Entities lists every entity ordered by id
func (r *BillingRepository) Entities(ctx context.Context) ([]access.Entity, error) {
	var rows []Entity
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]access.Entity, len(rows))
	for i := range rows {
		out[i] = rows[i].ToAccess()
	}
	return out, nil
}

// Entitlements lists the entitlements of one entity
func (r *BillingRepository) Entitlements(ctx context.Context, entityID uint) ([]access.Entitlement, error) {
	var rows []Entitlement
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("external_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]access.Entitlement, len(rows))
	for i, e := range rows {
		out[i] = access.Entitlement{
			ExternalID:  e.ExternalID,
			Active:      e.Active,
			Paid:        e.Paid,
			QuotaExpiry: e.QuotaExpiry,
		}
	}
	return out, nil
}

// Cards lists the access cards bound to one entity
func (r *BillingRepository) Cards(ctx context.Context, entityID uint) ([]access.CardBinding, error) {
	var rows []AccessCard
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("card_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]access.CardBinding, len(rows))
	for i, c := range rows {
		out[i] = access.CardBinding{CardID: c.CardID, Source: c.Source}
	}
	return out, nil
}

// GetEntity retrieves an entity by id
func (r *BillingRepository) GetEntity(ctx context.Context, id uint) (*Entity, error) {
	var e Entity
	if err := r.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// SaveEntity creates or updates an entity
func (r *BillingRepository) SaveEntity(ctx context.Context, e *Entity) error {
	return r.db.WithContext(ctx).Save(e).Error
}

// SaveEntitlement creates or updates an entitlement
func (r *BillingRepository) SaveEntitlement(ctx context.Context, e *Entitlement) error {
	return r.db.WithContext(ctx).Save(e).Error
}

// BindCard attaches a card to an entity. A card already bound for the same
// source moves to the new entity.
func (r *BillingRepository) BindCard(ctx context.Context, card *AccessCard) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "card_id"}, {Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"entity_id", "updated_at"}),
	}).Create(card).Error
}

// BindCards binds many cards in a transaction
func (r *BillingRepository) BindCards(ctx context.Context, cards []AccessCard, batchSize int) error {
	if len(cards) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < len(cards); i += batchSize {
			end := i + batchSize
			if end > len(cards) {
				end = len(cards)
			}
			batch := cards[i:end]

			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "card_id"}, {Name: "source"}},
				DoUpdates: clause.AssignmentColumns([]string{"entity_id", "updated_at"}),
			}).Create(&batch).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UnbindCard removes a card binding
func (r *BillingRepository) UnbindCard(ctx context.Context, cardID uint32, source string) error {
	return r.db.WithContext(ctx).
		Where("card_id = ? AND source = ?", cardID, source).
		Delete(&AccessCard{}).Error
}

// CountEntities returns the number of entities
func (r *BillingRepository) CountEntities(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Entity{}).Count(&count).Error
	return count, err
}

// DeleteEntity removes an entity with its entitlements and cards
func (r *BillingRepository) DeleteEntity(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entity_id = ?", id).Delete(&Entitlement{}).Error; err != nil {
			return err
		}
		if err := tx.Where("entity_id = ?", id).Delete(&AccessCard{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Entity{}, id).Error
	})
}
