package models

import (
	"encoding/json"
	"fmt"
)

// Backend identifies an agent backend. It is a closed enum: adapter
// construction switches exhaustively over these values, so adding a backend
// requires touching the factory.
type Backend int

const (
	// BackendEcho is a no-op backend that skips the agent stage entirely.
	// It ignores the model field of a combination.
	BackendEcho Backend = iota
	BackendAnthropic
	BackendOpenRouter
	BackendClaudeCode
)

var backendNames = map[Backend]string{
	BackendEcho:       "echo",
	BackendAnthropic:  "anthropic",
	BackendOpenRouter: "openrouter",
	BackendClaudeCode: "claude-code",
}

func (b Backend) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}
	return fmt.Sprintf("backend(%d)", int(b))
}

// UsesModel reports whether the backend consumes the model field of a
// combination. Model values are dropped during matrix expansion for backends
// that return false.
func (b Backend) UsesModel() bool {
	return b != BackendEcho
}

// MarshalJSON writes the backend as its name so persisted records stay
// readable and stable across enum reordering.
func (b Backend) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *Backend) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseBackend(name)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseBackend converts a backend name (as written in CLI flags and suite
// files) to its enum value.
func ParseBackend(s string) (Backend, error) {
	for b, name := range backendNames {
		if name == s {
			return b, nil
		}
	}
	return BackendEcho, fmt.Errorf("unknown agent backend %q", s)
}

// Combination is one (suite, scenario, tier, backend, model) tuple to be
// benchmarked. Model is empty for backends that ignore it.
type Combination struct {
	Suite    string  `json:"suite"`
	Scenario string  `json:"scenario"`
	Tier     string  `json:"tier"`
	Backend  Backend `json:"backend"`
	Model    string  `json:"model,omitempty"`
}

// Label returns a short human-readable identifier used in logs and
// workspace directory prefixes.
func (c Combination) Label() string {
	if c.Model == "" {
		return fmt.Sprintf("%s/%s/%s/%s", c.Suite, c.Scenario, c.Tier, c.Backend)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", c.Suite, c.Scenario, c.Tier, c.Backend, c.Model)
}
