package modular

// RequestState is the lifecycle state of a registration request or of a
// module being removed.
type RequestState string

const (
	StatePending       RequestState = "pending"
	StateValidating    RequestState = "validating"
	StateRegistered    RequestState = "registered"
	StateFailed        RequestState = "failed"
	StateDeregistering RequestState = "deregistering"
)

// IsTerminal reports whether no further transitions follow.
func (s RequestState) IsTerminal() bool {
	return s == StateRegistered || s == StateFailed
}

// validTransitions lists the allowed request state machine edges.
var validTransitions = map[RequestState][]RequestState{
	StatePending:    {StateValidating, StateFailed},
	StateValidating: {StateRegistered, StateFailed},
	StateRegistered: {StateDeregistering},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to RequestState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ModuleStatus is the product lifecycle status of a registered module.
type ModuleStatus string

const (
	ModuleStatusDevelopment ModuleStatus = "development"
	ModuleStatusActive      ModuleStatus = "active"
	ModuleStatusDeprecated  ModuleStatus = "deprecated"
	ModuleStatusDisabled    ModuleStatus = "disabled"
)
