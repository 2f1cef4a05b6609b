package attributes

import "fmt"

// Phase is the load phase of a single key.
type Phase uint8

const (
	// PhaseMissing means the key was never fetched or was invalidated.
	PhaseMissing Phase = iota
	// PhaseLoading means a request group covering the key is in flight.
	PhaseLoading
	// PhaseValid means the value is fresh as of the state's Version.
	PhaseValid
	// PhaseError means the last fetch failed; any value is stale.
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseMissing:
		return "missing"
	case PhaseLoading:
		return "loading"
	case PhaseValid:
		return "valid"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// State is the load state of one key.
type State struct {
	Phase   Phase
	Version Version
	Err     error
}

// Missing returns the state of a never fetched key.
func Missing() State { return State{Phase: PhaseMissing} }

// Loading returns the state of a key whose group is in flight.
func Loading() State { return State{Phase: PhaseLoading} }

// Valid returns a fresh state at version v.
func Valid(v Version) State { return State{Phase: PhaseValid, Version: v} }

// Failed returns an error state carrying err.
func Failed(err error) State { return State{Phase: PhaseError, Err: err} }

func (s State) IsMissing() bool { return s.Phase == PhaseMissing }
func (s State) IsLoading() bool { return s.Phase == PhaseLoading }
func (s State) IsValid() bool   { return s.Phase == PhaseValid }
func (s State) IsError() bool   { return s.Phase == PhaseError }

// NeedsFetch reports whether a demand for the key should trigger a request.
func (s State) NeedsFetch() bool {
	return s.Phase == PhaseMissing || s.Phase == PhaseError
}

func (s State) String() string {
	switch s.Phase {
	case PhaseValid:
		if s.Version == NoVersion {
			return "valid"
		}
		return "valid@" + string(s.Version)
	case PhaseError:
		if s.Err != nil {
			return "error: " + s.Err.Error()
		}
		return "error"
	default:
		return s.Phase.String()
	}
}

func (s State) equal(other State) bool {
	if s.Phase != other.Phase || s.Version != other.Version {
		return false
	}
	if s.Err == nil || other.Err == nil {
		return s.Err == other.Err
	}
	return s.Err.Error() == other.Err.Error()
}
