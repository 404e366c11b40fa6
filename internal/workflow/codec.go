package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/johnhkchen/my-little-soda-sub002/pkg/cerr"
)

// stateEnvelope is the wire form of the state union: a discriminator plus
// the variant's own fields.
type stateEnvelope struct {
	Kind StateKind       `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// StateBox wraps a State so the union can live inside JSON documents.
// A nil State marshals as JSON null.
type StateBox struct {
	State State
}

func (b StateBox) MarshalJSON() ([]byte, error) {
	if b.State == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(b.State)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s state: %w", b.State.Kind(), err)
	}
	return json.Marshal(stateEnvelope{Kind: b.State.Kind(), Data: data})
}

func (b *StateBox) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		b.State = nil
		return nil
	}
	var env stateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode state envelope: %w", err)
	}
	state, err := decodeState(env)
	if err != nil {
		return err
	}
	b.State = state
	return nil
}

func decodeAs[T State](data json.RawMessage) (State, error) {
	var s T
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", s, err)
	}
	return s, nil
}

func decodeState(env stateEnvelope) (State, error) {
	switch env.Kind {
	case StateAssigned:
		return decodeAs[Assigned](env.Data)
	case StateInProgress:
		return decodeAs[InProgress](env.Data)
	case StateBlocked:
		return decodeAs[Blocked](env.Data)
	case StateReadyForReview:
		return decodeAs[ReadyForReview](env.Data)
	case StateUnderReview:
		return decodeAs[UnderReview](env.Data)
	case StateApproved:
		return decodeAs[Approved](env.Data)
	case StateMergeConflict:
		return decodeAs[MergeConflict](env.Data)
	case StateCIFailure:
		return decodeAs[CIFailure](env.Data)
	case StateMerged:
		return decodeAs[Merged](env.Data)
	case StateAbandoned:
		return decodeAs[Abandoned](env.Data)
	default:
		return nil, cerr.NewError(cerr.DataLoss,
			fmt.Sprintf("unknown workflow state kind %q", env.Kind), nil)
	}
}
