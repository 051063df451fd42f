package state

import (
	"encoding/json"

	"sigs.k8s.io/yaml"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
)

// NetworkState is a full snapshot: interfaces, static routes and policy rules.
// The same schema describes both the desired and the observed state.
type NetworkState struct {
	Interfaces Interfaces `json:"interfaces"`
	Routes     Routes     `json:"routes"`
	Rules      RouteRules `json:"route-rules"`
}

// New returns an empty state.
func New() *NetworkState {
	return &NetworkState{}
}

// Clone deep copies the state.
func (s *NetworkState) Clone() *NetworkState {
	if s == nil {
		return New()
	}
	return &NetworkState{
		Interfaces: s.Interfaces.Clone(),
		Routes:     Routes{Config: cloneSlice(s.Routes.Config)},
		Rules:      RouteRules{Config: cloneSlice(s.Rules.Config)},
	}
}

// Parse decodes a YAML or JSON document.
func Parse(data []byte) (*NetworkState, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidArgument, "failed to parse state document", err)
	}

	s := New()
	if string(jsonData) == "null" {
		return s, nil
	}
	if err := json.Unmarshal(jsonData, s); err != nil {
		return nil, errors.Wrap(errors.KindInvalidArgument, "failed to decode state document", err)
	}
	return s, nil
}

// ToYAML renders the state as YAML.
func (s *NetworkState) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	for i := range in {
		out[i] = *cloneOf(&in[i])
	}
	return out
}
