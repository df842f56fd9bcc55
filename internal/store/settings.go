package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/freeeve/chesscoach/internal/config"
)

// Storage keys
const (
	keyEngineConfig = "chess-engine-config"
	keyContinuous   = "continuous-analysis-enabled"
)

// LoadEngineConfig returns the saved engine configuration, or the defaults
// when none was saved. Undecodable data is an error.
func (s *Store) LoadEngineConfig() (config.EngineConfig, error) {
	cfg := config.Default()
	data, err := s.get(keyEngineConfig)
	if errors.Is(err, ErrNotFound) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return config.Default(), fmt.Errorf("decode engine config: %w", err)
	}
	return cfg, nil
}

// SaveEngineConfig saves the engine configuration.
func (s *Store) SaveEngineConfig(cfg config.EngineConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.set(keyEngineConfig, data)
}

// LoadContinuous returns the continuous-analysis switch. Missing or
// undecodable data reads as off.
func (s *Store) LoadContinuous() (bool, error) {
	data, err := s.get(keyContinuous)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var enabled bool
	if err := json.Unmarshal(data, &enabled); err != nil {
		s.log.Warn().Err(err).Msg("corrupt continuous flag, using default")
		return false, nil
	}
	return enabled, nil
}

// SaveContinuous saves the continuous-analysis switch.
func (s *Store) SaveContinuous(enabled bool) error {
	data, err := json.Marshal(enabled)
	if err != nil {
		return err
	}
	return s.set(keyContinuous, data)
}
