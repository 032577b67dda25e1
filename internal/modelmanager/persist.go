package modelmanager

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/soltixdb/forecaster/internal/analytics/forecast"
	"github.com/soltixdb/forecaster/internal/compression"
)

// envelope tags a model state with the family that can decode it.
type envelope struct {
	Name  string `json:"name"`
	State []byte `json:"state"`
}

// Save serializes a fitted model into a compressed blob.
func (m *Manager) Save(model forecast.Model) ([]byte, error) {
	state, err := model.State()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", model.Name(), err)
	}
	raw, err := json.Marshal(envelope{Name: model.Name(), State: state})
	if err != nil {
		return nil, err
	}
	return compression.Encode(m.algo, raw)
}

// Load restores a model saved with Save. The model family must be registered.
func (m *Manager) Load(blob []byte) (forecast.Model, error) {
	raw, err := compression.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress model: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode model envelope: %w", err)
	}
	f, ok := m.Forecaster(env.Name)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrModelNotAvailable, env.Name)
	}
	return f.Decode(env.State)
}

// SaveFile writes a model blob to path.
func (m *Manager) SaveFile(model forecast.Model, path string) error {
	blob, err := m.Save(model)
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}

// LoadFile reads a model blob from path.
func (m *Manager) LoadFile(path string) (forecast.Model, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return m.Load(blob)
}
