package billing

import (
	"fmt"
	"time"

	vo "github.com/meterline/meterline/internal/domain/billing/valueobjects"
)

// Subscription is the billing aggregate root. It owns the lifecycle state
// machine (trial/active/past_due/canceled) and the current billing cycle
// window. All mutation goes through transition methods; every transition
// bumps the optimistic-lock version so persistence can apply it as a single
// conditional update.
type Subscription struct {
	id                     uint
	sid                    string // public Stripe-style ID (sub_...)
	customerID             string
	planVersionID          uint
	status                 vo.SubscriptionStatus
	billingCycleStartAt    time.Time
	billingCycleEndAt      time.Time
	nextBillingAt          time.Time
	lastBilledAt           *time.Time
	trialEndsAt            *time.Time
	pastDueAt              *time.Time
	gracePeriodDays        int
	whenToBill             vo.WhenToBill
	collectionMethod       vo.CollectionMethod
	defaultPaymentMethodID *string
	metadata               map[string]string
	version                int
	createdAt              time.Time
	updatedAt              time.Time
}

// NewSubscription creates a subscription at signup. When trialEndsAt is set
// the subscription starts in trial, otherwise active.
func NewSubscription(
	sid, customerID string,
	planVersionID uint,
	cycleStart, cycleEnd time.Time,
	whenToBill vo.WhenToBill,
	collectionMethod vo.CollectionMethod,
	gracePeriodDays int,
	trialEndsAt *time.Time,
) (*Subscription, error) {
	if sid == "" {
		return nil, fmt.Errorf("subscription SID is required")
	}
	if customerID == "" {
		return nil, fmt.Errorf("customer ID is required")
	}
	if planVersionID == 0 {
		return nil, fmt.Errorf("plan version ID is required")
	}
	if !cycleEnd.After(cycleStart) {
		return nil, fmt.Errorf("billing cycle end must be after cycle start")
	}
	if !whenToBill.IsValid() {
		return nil, fmt.Errorf("invalid when-to-bill: %s", whenToBill)
	}
	if !collectionMethod.IsValid() {
		return nil, fmt.Errorf("invalid collection method: %s", collectionMethod)
	}
	if gracePeriodDays < 0 {
		return nil, fmt.Errorf("grace period days cannot be negative")
	}

	status := vo.StatusActive
	if trialEndsAt != nil {
		status = vo.StatusTrial
	}

	// Advance billing collects at the cycle open, arrear at the close.
	nextBillingAt := cycleStart
	if whenToBill == vo.PayInArrear {
		nextBillingAt = cycleEnd
	}

	now := time.Now().UTC()
	return &Subscription{
		sid:                 sid,
		customerID:          customerID,
		planVersionID:       planVersionID,
		status:              status,
		billingCycleStartAt: cycleStart,
		billingCycleEndAt:   cycleEnd,
		nextBillingAt:       nextBillingAt,
		trialEndsAt:         trialEndsAt,
		gracePeriodDays:     gracePeriodDays,
		whenToBill:          whenToBill,
		collectionMethod:    collectionMethod,
		metadata:            make(map[string]string),
		version:             1,
		createdAt:           now,
		updatedAt:           now,
	}, nil
}

// SubscriptionReconstructParams carries persisted state back into the
// aggregate.
type SubscriptionReconstructParams struct {
	ID                     uint
	SID                    string
	CustomerID             string
	PlanVersionID          uint
	Status                 vo.SubscriptionStatus
	BillingCycleStartAt    time.Time
	BillingCycleEndAt      time.Time
	NextBillingAt          time.Time
	LastBilledAt           *time.Time
	TrialEndsAt            *time.Time
	PastDueAt              *time.Time
	GracePeriodDays        int
	WhenToBill             vo.WhenToBill
	CollectionMethod       vo.CollectionMethod
	DefaultPaymentMethodID *string
	Metadata               map[string]string
	Version                int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ReconstructSubscription rebuilds a subscription from persistence.
func ReconstructSubscription(p SubscriptionReconstructParams) (*Subscription, error) {
	if p.ID == 0 {
		return nil, fmt.Errorf("subscription ID cannot be zero")
	}
	if p.SID == "" {
		return nil, fmt.Errorf("subscription SID is required")
	}
	if p.CustomerID == "" {
		return nil, fmt.Errorf("customer ID is required")
	}
	if !p.Status.IsValid() {
		return nil, fmt.Errorf("invalid subscription status: %s", p.Status)
	}
	if (p.Status == vo.StatusPastDue) != (p.PastDueAt != nil) {
		return nil, fmt.Errorf("past_due_at must be set exactly when status is past_due")
	}
	if p.Metadata == nil {
		p.Metadata = make(map[string]string)
	}

	return &Subscription{
		id:                     p.ID,
		sid:                    p.SID,
		customerID:             p.CustomerID,
		planVersionID:          p.PlanVersionID,
		status:                 p.Status,
		billingCycleStartAt:    p.BillingCycleStartAt,
		billingCycleEndAt:      p.BillingCycleEndAt,
		nextBillingAt:          p.NextBillingAt,
		lastBilledAt:           p.LastBilledAt,
		trialEndsAt:            p.TrialEndsAt,
		pastDueAt:              p.PastDueAt,
		gracePeriodDays:        p.GracePeriodDays,
		whenToBill:             p.WhenToBill,
		collectionMethod:       p.CollectionMethod,
		defaultPaymentMethodID: p.DefaultPaymentMethodID,
		metadata:               p.Metadata,
		version:                p.Version,
		createdAt:              p.CreatedAt,
		updatedAt:              p.UpdatedAt,
	}, nil
}

func (s *Subscription) ID() uint                        { return s.id }
func (s *Subscription) SID() string                     { return s.sid }
func (s *Subscription) CustomerID() string              { return s.customerID }
func (s *Subscription) PlanVersionID() uint             { return s.planVersionID }
func (s *Subscription) Status() vo.SubscriptionStatus   { return s.status }
func (s *Subscription) BillingCycleStartAt() time.Time  { return s.billingCycleStartAt }
func (s *Subscription) BillingCycleEndAt() time.Time    { return s.billingCycleEndAt }
func (s *Subscription) NextBillingAt() time.Time        { return s.nextBillingAt }
func (s *Subscription) LastBilledAt() *time.Time        { return s.lastBilledAt }
func (s *Subscription) TrialEndsAt() *time.Time         { return s.trialEndsAt }
func (s *Subscription) PastDueAt() *time.Time           { return s.pastDueAt }
func (s *Subscription) GracePeriodDays() int            { return s.gracePeriodDays }
func (s *Subscription) WhenToBill() vo.WhenToBill       { return s.whenToBill }
func (s *Subscription) CollectionMethod() vo.CollectionMethod {
	return s.collectionMethod
}
func (s *Subscription) DefaultPaymentMethodID() *string { return s.defaultPaymentMethodID }
func (s *Subscription) Metadata() map[string]string     { return s.metadata }
func (s *Subscription) Version() int                    { return s.version }
func (s *Subscription) CreatedAt() time.Time            { return s.createdAt }
func (s *Subscription) UpdatedAt() time.Time            { return s.updatedAt }

// SetID sets the subscription ID (persistence layer only).
func (s *Subscription) SetID(id uint) error {
	if s.id != 0 {
		return fmt.Errorf("subscription ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("subscription ID cannot be zero")
	}
	s.id = id
	return nil
}

// Reason returns the recognized past-due reason from metadata, if present.
func (s *Subscription) Reason() (vo.PastDueReason, bool) {
	raw, ok := s.metadata[vo.MetaKeyReason]
	if !ok {
		return "", false
	}
	reason := vo.PastDueReason(raw)
	return reason, reason.IsValid()
}

// DueBehaviour returns the validated due behaviour from metadata.
func (s *Subscription) DueBehaviour() (vo.DueBehaviour, error) {
	raw, ok := s.metadata[vo.MetaKeyDueBehaviour]
	if !ok {
		return "", fmt.Errorf("due behaviour not set")
	}
	return vo.ParseDueBehaviour(raw)
}

// RequiresPaymentMethod reports whether automatic collection needs a stored
// payment method and none is present.
func (s *Subscription) RequiresPaymentMethod() bool {
	return s.collectionMethod == vo.ChargeAutomatically && s.defaultPaymentMethodID == nil
}

// SetDefaultPaymentMethod attaches a payment method for automatic charges.
func (s *Subscription) SetDefaultPaymentMethod(paymentMethodID string) {
	if paymentMethodID == "" {
		s.defaultPaymentMethodID = nil
	} else {
		s.defaultPaymentMethodID = &paymentMethodID
	}
	s.touch()
}

// IsPaidForCycle reports whether the subscription was already billed for its
// current cycle window.
func (s *Subscription) IsPaidForCycle() bool {
	if s.lastBilledAt == nil {
		return false
	}
	t := *s.lastBilledAt
	return !t.Before(s.billingCycleStartAt) && !t.After(s.billingCycleEndAt)
}

// BillingAnchor returns the cycle boundary a charge is anchored to:
// cycle start for pay_in_advance, cycle end for pay_in_arrear.
func (s *Subscription) BillingAnchor() time.Time {
	if s.whenToBill == vo.PayInAdvance {
		return s.billingCycleStartAt
	}
	return s.billingCycleEndAt
}

// GracePeriodEndsAt is the billing anchor plus the grace period.
func (s *Subscription) GracePeriodEndsAt() time.Time {
	return s.BillingAnchor().AddDate(0, 0, s.gracePeriodDays)
}

// ActivateFromTrial promotes a trial subscription once its trial has ended.
func (s *Subscription) ActivateFromTrial(now time.Time) error {
	if s.status != vo.StatusTrial {
		return fmt.Errorf("cannot activate from trial with status %s", s.status)
	}
	if s.trialEndsAt == nil || now.Before(*s.trialEndsAt) {
		return fmt.Errorf("trial has not ended yet")
	}
	s.status = vo.StatusActive
	s.touch()
	return nil
}

// MarkRenewed records a successful billing for the given cycle window. It
// advances lastBilledAt/nextBillingAt, clears any stale past-due reason and
// re-affirms active status. Safe to call on an already-active subscription.
func (s *Subscription) MarkRenewed(cycle Cycle, billedAt time.Time) error {
	if !s.status.CanTransitionTo(vo.StatusActive) {
		return fmt.Errorf("cannot renew subscription with status %s", s.status)
	}
	if !cycle.End.After(cycle.Start) {
		return fmt.Errorf("cycle end must be after cycle start")
	}

	s.status = vo.StatusActive
	s.billingCycleStartAt = cycle.Start
	s.billingCycleEndAt = cycle.End
	// Advance billing collects at the cycle open, arrear at the close.
	if s.whenToBill == vo.PayInAdvance {
		s.nextBillingAt = cycle.Start
	} else {
		s.nextBillingAt = cycle.End
	}
	s.lastBilledAt = &billedAt
	s.pastDueAt = nil
	delete(s.metadata, vo.MetaKeyReason)
	s.touch()
	return nil
}

// MarkPastDue moves the subscription into past_due with a recognized reason.
// pastDueAt is the grace period deadline after which punitive action applies.
// Re-entering past_due refreshes the reason without resetting the deadline.
func (s *Subscription) MarkPastDue(reason vo.PastDueReason, pastDueAt time.Time) error {
	if !reason.IsValid() {
		return fmt.Errorf("unrecognized past-due reason: %s", reason)
	}
	if !s.status.CanTransitionTo(vo.StatusPastDue) {
		return fmt.Errorf("cannot mark past due with status %s", s.status)
	}

	if s.status != vo.StatusPastDue || s.pastDueAt == nil {
		s.pastDueAt = &pastDueAt
	}
	s.status = vo.StatusPastDue
	s.metadata[vo.MetaKeyReason] = string(reason)
	s.touch()
	return nil
}

// ResolvePastDue returns a past-due subscription to active once its cause is
// resolved (invoice paid, payment method added).
func (s *Subscription) ResolvePastDue() error {
	if s.status != vo.StatusPastDue {
		return fmt.Errorf("cannot resolve past due with status %s", s.status)
	}
	s.status = vo.StatusActive
	s.pastDueAt = nil
	delete(s.metadata, vo.MetaKeyReason)
	s.touch()
	return nil
}

// GraceElapsed reports whether the past-due deadline has passed.
func (s *Subscription) GraceElapsed(now time.Time) bool {
	return s.status == vo.StatusPastDue && s.pastDueAt != nil && !now.Before(*s.pastDueAt)
}

// Cancel moves the subscription to its terminal state. Canceled
// subscriptions are retained for audit, never deleted.
func (s *Subscription) Cancel(note string) error {
	if s.status == vo.StatusCanceled {
		return nil
	}
	if !s.status.CanTransitionTo(vo.StatusCanceled) {
		return fmt.Errorf("cannot cancel subscription with status %s", s.status)
	}
	s.status = vo.StatusCanceled
	s.pastDueAt = nil
	delete(s.metadata, vo.MetaKeyReason)
	if note != "" {
		s.metadata[vo.MetaKeyNote] = note
	}
	s.touch()
	return nil
}

// ChangePlan switches the subscription to another plan version. Used by the
// downgrade branch of past-due reconciliation and by mid-cycle plan changes.
func (s *Subscription) ChangePlan(newPlanVersionID uint) error {
	if newPlanVersionID == 0 {
		return fmt.Errorf("new plan version ID is required")
	}
	if s.status == vo.StatusCanceled {
		return fmt.Errorf("cannot change plan of a canceled subscription")
	}
	if newPlanVersionID == s.planVersionID {
		return nil
	}
	s.planVersionID = newPlanVersionID
	s.touch()
	return nil
}

// SetMetadata sets a diagnostic metadata value.
func (s *Subscription) SetMetadata(key, value string) {
	s.metadata[key] = value
	s.touch()
}

// Validate enforces the aggregate invariants.
func (s *Subscription) Validate() error {
	if s.customerID == "" {
		return fmt.Errorf("customer ID is required")
	}
	if s.planVersionID == 0 {
		return fmt.Errorf("plan version ID is required")
	}
	if !s.status.IsValid() {
		return fmt.Errorf("invalid status: %s", s.status)
	}
	if !s.billingCycleEndAt.After(s.billingCycleStartAt) {
		return fmt.Errorf("billing cycle end must be after cycle start")
	}
	if (s.status == vo.StatusPastDue) != (s.pastDueAt != nil) {
		return fmt.Errorf("past_due_at must be set exactly when status is past_due")
	}
	return nil
}

func (s *Subscription) touch() {
	s.updatedAt = time.Now().UTC()
	s.version++
}
