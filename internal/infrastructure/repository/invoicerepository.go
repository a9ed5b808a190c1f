package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/meterline/meterline/internal/domain/billing"
	"github.com/meterline/meterline/internal/infrastructure/persistence/mappers"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/logger"
)

type InvoiceRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.InvoiceMapper
	logger logger.Interface
}

func NewInvoiceRepository(
	db *gorm.DB,
	logger logger.Interface,
) billing.InvoiceRepository {
	return &InvoiceRepositoryImpl{
		db:     db,
		mapper: mappers.NewInvoiceMapper(),
		logger: logger,
	}
}

// CreateForPeriod inserts the invoice relying on the unique
// (subscription, period start) index for the at-most-once guarantee.
func (r *InvoiceRepositoryImpl) CreateForPeriod(ctx context.Context, inv *billing.Invoice) error {
	model, err := r.mapper.ToModel(inv)
	if err != nil {
		r.logger.Errorw("failed to map invoice entity to model", "error", err)
		return fmt.Errorf("failed to map invoice entity: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return billing.ErrInvoiceExists
		}
		r.logger.Errorw("failed to create invoice", "error", err)
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	if err := inv.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set invoice ID: %w", err)
	}

	r.logger.Infow("invoice created successfully",
		"id", model.ID, "sid", model.SID, "subscription_id", model.SubscriptionID)
	return nil
}

func (r *InvoiceRepositoryImpl) GetByID(ctx context.Context, id uint) (*billing.Invoice, error) {
	var model models.InvoiceModel

	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrInvoiceNotFound
		}
		r.logger.Errorw("failed to get invoice by ID", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

func (r *InvoiceRepositoryImpl) GetBySID(ctx context.Context, sid string) (*billing.Invoice, error) {
	var model models.InvoiceModel

	if err := r.db.WithContext(ctx).Where("sid = ?", sid).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrInvoiceNotFound
		}
		r.logger.Errorw("failed to get invoice by SID", "sid", sid, "error", err)
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

func (r *InvoiceRepositoryImpl) GetByProviderRef(ctx context.Context, ref string) (*billing.Invoice, error) {
	var model models.InvoiceModel

	if err := r.db.WithContext(ctx).Where("provider_ref = ?", ref).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrInvoiceNotFound
		}
		r.logger.Errorw("failed to get invoice by provider ref", "provider_ref", ref, "error", err)
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

func (r *InvoiceRepositoryImpl) GetOpenBySubscription(ctx context.Context, subscriptionID uint) (*billing.Invoice, error) {
	var model models.InvoiceModel

	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, "open").
		Order("period_start DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrInvoiceNotFound
		}
		r.logger.Errorw("failed to get open invoice",
			"subscription_id", subscriptionID, "error", err)
		return nil, fmt.Errorf("failed to get open invoice: %w", err)
	}

	return r.mapper.ToEntity(&model)
}

func (r *InvoiceRepositoryImpl) UpdateStatus(ctx context.Context, inv *billing.Invoice) error {
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ?", inv.ID()).
		Updates(map[string]any{
			"status":       string(inv.Status()),
			"provider_ref": inv.ProviderRef(),
			"updated_at":   inv.UpdatedAt(),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to update invoice status", "id", inv.ID(), "error", result.Error)
		return fmt.Errorf("failed to update invoice status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return billing.ErrInvoiceNotFound
	}

	return nil
}
