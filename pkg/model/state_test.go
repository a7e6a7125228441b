package model

import "testing"

func TestRequestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    RequestState
		terminal bool
	}{
		{RequestStateQueued, false},
		{RequestStateInitializing, false},
		{RequestStateSearching, false},
		{RequestStateFinished, true},
		{RequestStateCanceled, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("RequestState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestRequestState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  RequestState
		to    RequestState
		valid bool
	}{
		// Valid transitions
		{RequestStateQueued, RequestStateInitializing, true},
		{RequestStateQueued, RequestStateCanceled, true},
		{RequestStateInitializing, RequestStateSearching, true},
		{RequestStateInitializing, RequestStateCanceled, true},
		{RequestStateSearching, RequestStateFinished, true},
		{RequestStateSearching, RequestStateCanceled, true},

		// Invalid transitions
		{RequestStateQueued, RequestStateFinished, false},
		{RequestStateQueued, RequestStateSearching, false},
		{RequestStateFinished, RequestStateCanceled, false},
		{RequestStateCanceled, RequestStateQueued, false},
		{RequestStateSearching, RequestStateInitializing, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("RequestState(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}
