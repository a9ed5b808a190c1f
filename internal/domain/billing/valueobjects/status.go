package valueobjects

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	StatusTrial    SubscriptionStatus = "trial"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// ValidStatuses is the closed set of subscription statuses.
var ValidStatuses = map[SubscriptionStatus]bool{
	StatusTrial:    true,
	StatusActive:   true,
	StatusPastDue:  true,
	StatusCanceled: true,
}

// transitions is the allowed state machine. canceled is terminal.
var transitions = map[SubscriptionStatus]map[SubscriptionStatus]bool{
	StatusTrial: {
		StatusActive:   true,
		StatusCanceled: true,
	},
	StatusActive: {
		StatusActive:   true, // renewal re-affirms active
		StatusPastDue:  true,
		StatusCanceled: true,
	},
	StatusPastDue: {
		StatusPastDue:  true, // re-affirmed each reconciliation run
		StatusActive:   true,
		StatusCanceled: true,
	},
	StatusCanceled: {},
}

// IsValid reports whether the status belongs to the closed set.
func (s SubscriptionStatus) IsValid() bool {
	return ValidStatuses[s]
}

// CanTransitionTo reports whether the state machine permits moving to target.
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	return transitions[s][target]
}

// IsTerminal reports whether no further transitions are possible.
func (s SubscriptionStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s SubscriptionStatus) String() string {
	return string(s)
}
