package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
	"github.com/meterline/meterline/internal/domain/metering"
)

// PlanFeature is one billable feature of a plan version: its unit price, the
// units included before metered charges apply, and the method used to
// collapse raw usage events into a billable quantity.
type PlanFeature struct {
	FeatureSlug     string
	UnitAmountCents int64
	IncludedUnits   decimal.Decimal
	Aggregation     metering.AggregationMethod
}

// PlanVersion is an immutable pricing snapshot customers subscribe to. New
// pricing means a new version; existing subscriptions keep billing on the
// version they signed up for.
type PlanVersion struct {
	id                    uint
	sid                   string // plan_...
	planName              string
	versionNumber         int
	currency              string
	period                vo.BillingPeriod
	whenToBill            vo.WhenToBill
	collectionMethod      vo.CollectionMethod
	requiresPaymentMethod bool
	gracePeriodDays       int
	trialDays             int
	features              []PlanFeature
	active                bool
}

// NewPlanVersion validates and builds a plan version.
func NewPlanVersion(
	sid, planName string,
	versionNumber int,
	currency string,
	period vo.BillingPeriod,
	whenToBill vo.WhenToBill,
	collectionMethod vo.CollectionMethod,
	requiresPaymentMethod bool,
	gracePeriodDays, trialDays int,
	features []PlanFeature,
) (*PlanVersion, error) {
	if sid == "" {
		return nil, fmt.Errorf("plan SID is required")
	}
	if planName == "" {
		return nil, fmt.Errorf("plan name is required")
	}
	if versionNumber < 1 {
		return nil, fmt.Errorf("version number must be at least 1")
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("currency must be a 3-letter code, got %q", currency)
	}
	if !whenToBill.IsValid() {
		return nil, fmt.Errorf("invalid when-to-bill: %s", whenToBill)
	}
	if !collectionMethod.IsValid() {
		return nil, fmt.Errorf("invalid collection method: %s", collectionMethod)
	}
	if gracePeriodDays < 0 || trialDays < 0 {
		return nil, fmt.Errorf("grace period and trial days cannot be negative")
	}
	for _, f := range features {
		if f.FeatureSlug == "" {
			return nil, fmt.Errorf("feature slug is required")
		}
		if f.UnitAmountCents < 0 {
			return nil, fmt.Errorf("unit amount cannot be negative for feature %s", f.FeatureSlug)
		}
		if !f.Aggregation.IsValid() {
			return nil, fmt.Errorf("invalid aggregation method %q for feature %s", f.Aggregation, f.FeatureSlug)
		}
	}

	return &PlanVersion{
		sid:                   sid,
		planName:              planName,
		versionNumber:         versionNumber,
		currency:              currency,
		period:                period,
		whenToBill:            whenToBill,
		collectionMethod:      collectionMethod,
		requiresPaymentMethod: requiresPaymentMethod,
		gracePeriodDays:       gracePeriodDays,
		trialDays:             trialDays,
		features:              features,
		active:                true,
	}, nil
}

// PlanVersionReconstructParams carries persisted state back into the
// aggregate.
type PlanVersionReconstructParams struct {
	ID                    uint
	SID                   string
	PlanName              string
	VersionNumber         int
	Currency              string
	Period                vo.BillingPeriod
	WhenToBill            vo.WhenToBill
	CollectionMethod      vo.CollectionMethod
	RequiresPaymentMethod bool
	GracePeriodDays       int
	TrialDays             int
	Features              []PlanFeature
	Active                bool
}

// ReconstructPlanVersion rebuilds a plan version from persistence.
func ReconstructPlanVersion(p PlanVersionReconstructParams) (*PlanVersion, error) {
	if p.ID == 0 {
		return nil, fmt.Errorf("plan version ID cannot be zero")
	}
	pv, err := NewPlanVersion(
		p.SID, p.PlanName, p.VersionNumber, p.Currency, p.Period,
		p.WhenToBill, p.CollectionMethod, p.RequiresPaymentMethod,
		p.GracePeriodDays, p.TrialDays, p.Features,
	)
	if err != nil {
		return nil, err
	}
	pv.id = p.ID
	pv.active = p.Active
	return pv, nil
}

func (p *PlanVersion) ID() uint                         { return p.id }
func (p *PlanVersion) SID() string                      { return p.sid }
func (p *PlanVersion) PlanName() string                 { return p.planName }
func (p *PlanVersion) VersionNumber() int               { return p.versionNumber }
func (p *PlanVersion) Currency() string                 { return p.currency }
func (p *PlanVersion) Period() vo.BillingPeriod         { return p.period }
func (p *PlanVersion) WhenToBill() vo.WhenToBill        { return p.whenToBill }
func (p *PlanVersion) CollectionMethod() vo.CollectionMethod {
	return p.collectionMethod
}
func (p *PlanVersion) RequiresPaymentMethod() bool { return p.requiresPaymentMethod }
func (p *PlanVersion) GracePeriodDays() int        { return p.gracePeriodDays }
func (p *PlanVersion) TrialDays() int              { return p.trialDays }
func (p *PlanVersion) Features() []PlanFeature     { return p.features }
func (p *PlanVersion) Active() bool                { return p.active }

// SetID sets the plan version ID (persistence layer only).
func (p *PlanVersion) SetID(id uint) error {
	if p.id != 0 {
		return fmt.Errorf("plan version ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("plan version ID cannot be zero")
	}
	p.id = id
	return nil
}

// Deactivate closes the version for new signups. Existing subscriptions keep
// billing on it.
func (p *PlanVersion) Deactivate() {
	p.active = false
}

// Feature returns the pricing entry for a feature slug.
func (p *PlanVersion) Feature(slug string) (PlanFeature, bool) {
	for _, f := range p.features {
		if f.FeatureSlug == slug {
			return f, true
		}
	}
	return PlanFeature{}, false
}

// PriceFor computes the billable amount in cents for a quantity of a
// feature, after subtracting included units and applying the proration
// factor. Negative quantities are a data corruption signal and rejected.
func (p *PlanVersion) PriceFor(slug string, quantity, prorationFactor decimal.Decimal) (int64, error) {
	if quantity.IsNegative() {
		return 0, fmt.Errorf("negative usage quantity %s for feature %s", quantity, slug)
	}
	feature, ok := p.Feature(slug)
	if !ok {
		return 0, fmt.Errorf("feature %s is not part of plan %s", slug, p.sid)
	}

	billable := quantity.Sub(feature.IncludedUnits)
	if billable.IsNegative() {
		billable = decimal.Zero
	}

	amount := billable.
		Mul(decimal.NewFromInt(feature.UnitAmountCents)).
		Mul(prorationFactor).
		Round(0)
	return amount.IntPart(), nil
}
