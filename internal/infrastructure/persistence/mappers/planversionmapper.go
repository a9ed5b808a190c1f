package mappers

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/domain/metering"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
)

// planFeatureDoc is the JSON document form of one plan feature.
type planFeatureDoc struct {
	FeatureSlug     string          `json:"feature_slug"`
	UnitAmountCents int64           `json:"unit_amount_cents"`
	IncludedUnits   decimal.Decimal `json:"included_units"`
	Aggregation     string          `json:"aggregation"`
}

type PlanVersionMapper interface {
	ToEntity(model *models.PlanVersionModel) (*billing.PlanVersion, error)
	ToModel(entity *billing.PlanVersion) (*models.PlanVersionModel, error)
	ToEntities(models []*models.PlanVersionModel) ([]*billing.PlanVersion, error)
}

type PlanVersionMapperImpl struct{}

func NewPlanVersionMapper() PlanVersionMapper {
	return &PlanVersionMapperImpl{}
}

func (m *PlanVersionMapperImpl) ToEntity(model *models.PlanVersionModel) (*billing.PlanVersion, error) {
	if model == nil {
		return nil, nil
	}

	period, err := vo.NewBillingPeriod(
		vo.PeriodUnit(model.PeriodUnit),
		model.IntervalCount,
		vo.AnchorPolicy(model.AnchorPolicy),
		model.AnchorDay,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild billing period: %w", err)
	}

	var docs []planFeatureDoc
	if model.Features != nil {
		if err := json.Unmarshal(model.Features, &docs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan features: %w", err)
		}
	}
	features := make([]billing.PlanFeature, 0, len(docs))
	for _, d := range docs {
		features = append(features, billing.PlanFeature{
			FeatureSlug:     d.FeatureSlug,
			UnitAmountCents: d.UnitAmountCents,
			IncludedUnits:   d.IncludedUnits,
			Aggregation:     metering.AggregationMethod(d.Aggregation),
		})
	}

	return billing.ReconstructPlanVersion(billing.PlanVersionReconstructParams{
		ID:                    model.ID,
		SID:                   model.SID,
		PlanName:              model.PlanName,
		VersionNumber:         model.VersionNumber,
		Currency:              model.Currency,
		Period:                period,
		WhenToBill:            vo.WhenToBill(model.WhenToBill),
		CollectionMethod:      vo.CollectionMethod(model.CollectionMethod),
		RequiresPaymentMethod: model.RequiresPaymentMethod,
		GracePeriodDays:       model.GracePeriodDays,
		TrialDays:             model.TrialDays,
		Features:              features,
		Active:                model.Active,
	})
}

func (m *PlanVersionMapperImpl) ToModel(entity *billing.PlanVersion) (*models.PlanVersionModel, error) {
	if entity == nil {
		return nil, nil
	}

	docs := make([]planFeatureDoc, 0, len(entity.Features()))
	for _, f := range entity.Features() {
		docs = append(docs, planFeatureDoc{
			FeatureSlug:     f.FeatureSlug,
			UnitAmountCents: f.UnitAmountCents,
			IncludedUnits:   f.IncludedUnits,
			Aggregation:     string(f.Aggregation),
		})
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan features: %w", err)
	}

	period := entity.Period()
	return &models.PlanVersionModel{
		ID:                    entity.ID(),
		SID:                   entity.SID(),
		PlanName:              entity.PlanName(),
		VersionNumber:         entity.VersionNumber(),
		Currency:              entity.Currency(),
		PeriodUnit:            string(period.Unit),
		IntervalCount:         period.IntervalCount,
		AnchorPolicy:          string(period.Anchor),
		AnchorDay:             period.AnchorDay,
		WhenToBill:            string(entity.WhenToBill()),
		CollectionMethod:      string(entity.CollectionMethod()),
		RequiresPaymentMethod: entity.RequiresPaymentMethod(),
		GracePeriodDays:       entity.GracePeriodDays(),
		TrialDays:             entity.TrialDays(),
		Features:              datatypes.JSON(raw),
		Active:                entity.Active(),
	}, nil
}

func (m *PlanVersionMapperImpl) ToEntities(planModels []*models.PlanVersionModel) ([]*billing.PlanVersion, error) {
	entities := make([]*billing.PlanVersion, 0, len(planModels))
	for _, model := range planModels {
		entity, err := m.ToEntity(model)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
