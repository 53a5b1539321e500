package domain

import "fmt"

// FetchStatus is the lifecycle of the product fetch for one page session.
type FetchStatus int

const (
	StatusIdle FetchStatus = iota
	StatusLoading
	StatusSuccess
	StatusFailure
)

var fetchStatusNames = [...]string{"IDLE", "LOADING", "SUCCESS", "FAILURE"}

func (s FetchStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("FetchStatus(%d)", int(s))
	}
	return fetchStatusNames[s]
}

// Valid reports whether s is one of the four declared statuses.
func (s FetchStatus) Valid() bool {
	return s >= StatusIdle && s <= StatusFailure
}

// MarshalText encodes the status by name.
func (s FetchStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal fetch status: unknown value %d", int(s))
	}
	return []byte(fetchStatusNames[s]), nil
}

// UnmarshalText decodes a status name.
func (s *FetchStatus) UnmarshalText(b []byte) error {
	for i, name := range fetchStatusNames {
		if name == string(b) {
			*s = FetchStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unmarshal fetch status: unknown name %q", b)
}

// FailureReason says why a fetch ended in StatusFailure.
type FailureReason int

const (
	FailureNone FailureReason = iota
	FailureNotFound
	FailureUnavailable
)

var failureReasonNames = [...]string{"", "NOT_FOUND", "UNAVAILABLE"}

func (f FailureReason) String() string {
	if f < FailureNone || f > FailureUnavailable {
		return fmt.Sprintf("FailureReason(%d)", int(f))
	}
	return failureReasonNames[f]
}

// MarshalText encodes the reason by name.
func (f FailureReason) MarshalText() ([]byte, error) {
	if f < FailureNone || f > FailureUnavailable {
		return nil, fmt.Errorf("marshal failure reason: unknown value %d", int(f))
	}
	return []byte(failureReasonNames[f]), nil
}

// UnmarshalText decodes a reason name.
func (f *FailureReason) UnmarshalText(b []byte) error {
	for i, name := range failureReasonNames {
		if name == string(b) {
			*f = FailureReason(i)
			return nil
		}
	}
	return fmt.Errorf("unmarshal failure reason: unknown name %q", b)
}
