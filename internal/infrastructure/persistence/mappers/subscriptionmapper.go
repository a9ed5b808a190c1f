package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
)

type SubscriptionMapper interface {
	ToEntity(model *models.SubscriptionModel) (*billing.Subscription, error)
	ToModel(entity *billing.Subscription) (*models.SubscriptionModel, error)
	ToEntities(models []*models.SubscriptionModel) ([]*billing.Subscription, error)
}

type SubscriptionMapperImpl struct{}

func NewSubscriptionMapper() SubscriptionMapper {
	return &SubscriptionMapperImpl{}
}

func (m *SubscriptionMapperImpl) ToEntity(model *models.SubscriptionModel) (*billing.Subscription, error) {
	if model == nil {
		return nil, nil
	}

	metadata, err := unmarshalStringMap(model.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return billing.ReconstructSubscription(billing.SubscriptionReconstructParams{
		ID:                     model.ID,
		SID:                    model.SID,
		CustomerID:             model.CustomerID,
		PlanVersionID:          model.PlanVersionID,
		Status:                 vo.SubscriptionStatus(model.Status),
		BillingCycleStartAt:    model.BillingCycleStartAt,
		BillingCycleEndAt:      model.BillingCycleEndAt,
		NextBillingAt:          model.NextBillingAt,
		LastBilledAt:           model.LastBilledAt,
		TrialEndsAt:            model.TrialEndsAt,
		PastDueAt:              model.PastDueAt,
		GracePeriodDays:        model.GracePeriodDays,
		WhenToBill:             vo.WhenToBill(model.WhenToBill),
		CollectionMethod:       vo.CollectionMethod(model.CollectionMethod),
		DefaultPaymentMethodID: model.DefaultPaymentMethodID,
		Metadata:               metadata,
		Version:                model.Version,
		CreatedAt:              model.CreatedAt,
		UpdatedAt:              model.UpdatedAt,
	})
}

func (m *SubscriptionMapperImpl) ToModel(entity *billing.Subscription) (*models.SubscriptionModel, error) {
	if entity == nil {
		return nil, nil
	}

	metadata, err := marshalStringMap(entity.Metadata())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return &models.SubscriptionModel{
		ID:                     entity.ID(),
		SID:                    entity.SID(),
		CustomerID:             entity.CustomerID(),
		PlanVersionID:          entity.PlanVersionID(),
		Status:                 string(entity.Status()),
		BillingCycleStartAt:    entity.BillingCycleStartAt(),
		BillingCycleEndAt:      entity.BillingCycleEndAt(),
		NextBillingAt:          entity.NextBillingAt(),
		LastBilledAt:           entity.LastBilledAt(),
		TrialEndsAt:            entity.TrialEndsAt(),
		PastDueAt:              entity.PastDueAt(),
		GracePeriodDays:        entity.GracePeriodDays(),
		WhenToBill:             string(entity.WhenToBill()),
		CollectionMethod:       string(entity.CollectionMethod()),
		DefaultPaymentMethodID: entity.DefaultPaymentMethodID(),
		Metadata:               metadata,
		Version:                entity.Version(),
		CreatedAt:              entity.CreatedAt(),
		UpdatedAt:              entity.UpdatedAt(),
	}, nil
}

func (m *SubscriptionMapperImpl) ToEntities(subModels []*models.SubscriptionModel) ([]*billing.Subscription, error) {
	entities := make([]*billing.Subscription, 0, len(subModels))
	for _, model := range subModels {
		entity, err := m.ToEntity(model)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func unmarshalStringMap(data datatypes.JSON) (map[string]string, error) {
	if data == nil {
		return make(map[string]string), nil
	}
	var out map[string]string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[string]string)
	}
	return out, nil
}

func marshalStringMap(data map[string]string) (datatypes.JSON, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
