package mappers

import (
	"fmt"

	"github.com/meterline/meterline/internal/domain/metering"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
)

type UsageEventMapper interface {
	ToEntity(model *models.UsageEventModel) (*metering.UsageEvent, error)
	ToModel(entity *metering.UsageEvent) (*models.UsageEventModel, error)
	ToEntities(models []*models.UsageEventModel) ([]*metering.UsageEvent, error)
}

type UsageEventMapperImpl struct{}

func NewUsageEventMapper() UsageEventMapper {
	return &UsageEventMapperImpl{}
}

func (m *UsageEventMapperImpl) ToEntity(model *models.UsageEventModel) (*metering.UsageEvent, error) {
	if model == nil {
		return nil, nil
	}

	metadata, err := unmarshalStringMap(model.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metering.ReconstructUsageEvent(
		model.ID,
		model.SID,
		model.CustomerID,
		model.FeatureSlug,
		model.Usage,
		model.IdempotenceKey,
		model.Timestamp,
		metadata,
		model.CreatedAt,
	)
}

func (m *UsageEventMapperImpl) ToModel(entity *metering.UsageEvent) (*models.UsageEventModel, error) {
	if entity == nil {
		return nil, nil
	}

	metadata, err := marshalStringMap(entity.Metadata())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return &models.UsageEventModel{
		ID:             entity.ID(),
		SID:            entity.SID(),
		CustomerID:     entity.CustomerID(),
		FeatureSlug:    entity.FeatureSlug(),
		Usage:          entity.Usage(),
		IdempotenceKey: entity.IdempotenceKey(),
		Timestamp:      entity.Timestamp(),
		Metadata:       metadata,
		CreatedAt:      entity.CreatedAt(),
	}, nil
}

func (m *UsageEventMapperImpl) ToEntities(eventModels []*models.UsageEventModel) ([]*metering.UsageEvent, error) {
	entities := make([]*metering.UsageEvent, 0, len(eventModels))
	for _, model := range eventModels {
		entity, err := m.ToEntity(model)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
