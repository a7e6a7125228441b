package model

// RequestState represents the lifecycle state of an exchange request.
type RequestState string

const (
	RequestStateQueued       RequestState = "QUEUED"
	RequestStateInitializing RequestState = "INITIALIZING"
	RequestStateSearching    RequestState = "SEARCHING"
	RequestStateFinished     RequestState = "FINISHED"
	RequestStateCanceled     RequestState = "CANCELED"
)

// String returns the string representation of the request state.
func (s RequestState) String() string {
	return string(s)
}

// IsTerminal returns true if the request is in a final state.
func (s RequestState) IsTerminal() bool {
	switch s {
	case RequestStateFinished, RequestStateCanceled:
		return true
	}
	return false
}

// ValidRequestTransitions defines the allowed state transitions for requests.
// A request may be canceled from any non-terminal state.
var ValidRequestTransitions = map[RequestState][]RequestState{
	RequestStateQueued:       {RequestStateInitializing, RequestStateCanceled},
	RequestStateInitializing: {RequestStateSearching, RequestStateCanceled},
	RequestStateSearching:    {RequestStateFinished, RequestStateCanceled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s RequestState) CanTransitionTo(next RequestState) bool {
	for _, allowed := range ValidRequestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Result is the outcome attached to a canceled or finished exchange.
type Result string

const (
	ResultSuccess        Result = "SUCCESS"
	ResultUserCanceled   Result = "USER_CANCELED"
	ResultNoPartner      Result = "NO_PARTNER"
	ResultPartnerTooSlow Result = "PARTNER_TOO_SLOW"
	ResultIllegalPayload Result = "ILLEGAL_PAYLOAD"
	ResultRoutineStopped Result = "ROUTINE_STOPPED"
	ResultExchangeError  Result = "EXCHANGE_ERROR"
)

// String returns the string representation of the result.
func (r Result) String() string {
	return string(r)
}
