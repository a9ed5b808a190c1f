package mappers

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/meterline/meterline/internal/domain/billing"
	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
)

// invoiceLineDoc is the JSON document form of one invoice line.
type invoiceLineDoc struct {
	FeatureSlug string          `json:"feature_slug"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitAmount  int64           `json:"unit_amount"`
	Amount      int64           `json:"amount"`
	Currency    string          `json:"currency"`
	Prorated    bool            `json:"prorated"`
}

type InvoiceMapper interface {
	ToEntity(model *models.InvoiceModel) (*billing.Invoice, error)
	ToModel(entity *billing.Invoice) (*models.InvoiceModel, error)
}

type InvoiceMapperImpl struct{}

func NewInvoiceMapper() InvoiceMapper {
	return &InvoiceMapperImpl{}
}

func (m *InvoiceMapperImpl) ToEntity(model *models.InvoiceModel) (*billing.Invoice, error) {
	if model == nil {
		return nil, nil
	}

	var docs []invoiceLineDoc
	if model.Lines != nil {
		if err := json.Unmarshal(model.Lines, &docs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal invoice lines: %w", err)
		}
	}
	lines := make([]billing.InvoiceLine, 0, len(docs))
	for _, d := range docs {
		lines = append(lines, billing.InvoiceLine{
			FeatureSlug: d.FeatureSlug,
			Description: d.Description,
			Quantity:    d.Quantity,
			UnitAmount:  d.UnitAmount,
			Amount:      d.Amount,
			Currency:    d.Currency,
			Prorated:    d.Prorated,
		})
	}

	return billing.ReconstructInvoice(
		model.ID,
		model.SID,
		model.SubscriptionID,
		model.CustomerID,
		model.PeriodStart,
		model.PeriodEnd,
		model.Currency,
		vo.InvoiceStatus(model.Status),
		lines,
		model.ProviderRef,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

func (m *InvoiceMapperImpl) ToModel(entity *billing.Invoice) (*models.InvoiceModel, error) {
	if entity == nil {
		return nil, nil
	}

	docs := make([]invoiceLineDoc, 0, len(entity.Lines()))
	for _, l := range entity.Lines() {
		docs = append(docs, invoiceLineDoc{
			FeatureSlug: l.FeatureSlug,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitAmount:  l.UnitAmount,
			Amount:      l.Amount,
			Currency:    l.Currency,
			Prorated:    l.Prorated,
		})
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice lines: %w", err)
	}

	return &models.InvoiceModel{
		ID:             entity.ID(),
		SID:            entity.SID(),
		SubscriptionID: entity.SubscriptionID(),
		CustomerID:     entity.CustomerID(),
		PeriodStart:    entity.PeriodStart(),
		PeriodEnd:      entity.PeriodEnd(),
		Currency:       entity.Currency(),
		Status:         string(entity.Status()),
		Lines:          datatypes.JSON(raw),
		ProviderRef:    entity.ProviderRef(),
		CreatedAt:      entity.CreatedAt(),
		UpdatedAt:      entity.UpdatedAt(),
	}, nil
}
