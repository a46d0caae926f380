package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RuntimeStore persists the battle tunables to a JSON file so operator
// changes survive restarts
type RuntimeStore struct {
	battle     Battle
	configPath string
	mu         sync.RWMutex
}

// NewRuntimeStore loads path if it exists, otherwise writes defaults to it
func NewRuntimeStore(path string, defaults Battle) (*RuntimeStore, error) {
	store := &RuntimeStore{
		configPath: path,
		battle:     defaults,
	}

	if _, err := os.Stat(path); err == nil {
		if err := store.loadFromFile(); err != nil {
			return nil, fmt.Errorf("failed to load runtime config: %v", err)
		}
	} else {
		if err := store.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to save default runtime config: %v", err)
		}
	}

	return store, nil
}

// Battle returns the current battle tunables
func (s *RuntimeStore) Battle() Battle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.battle
}

// Save validates and persists battle
func (s *RuntimeStore) Save(battle Battle) error {
	if err := battle.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.battle
	s.battle = battle
	if err := s.saveToFile(); err != nil {
		s.battle = previous
		return err
	}
	return nil
}

func (s *RuntimeStore) loadFromFile() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to read runtime config file: %v", err)
	}

	// Fields missing from the file keep their defaults
	battle := s.battle
	if err := json.Unmarshal(data, &battle); err != nil {
		return fmt.Errorf("failed to parse runtime config: %v", err)
	}
	if err := battle.Validate(); err != nil {
		return fmt.Errorf("invalid runtime config: %v", err)
	}

	s.battle = battle
	return nil
}

func (s *RuntimeStore) saveToFile() error {
	data, err := json.MarshalIndent(s.battle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal runtime config: %v", err)
	}

	if dir := filepath.Dir(s.configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create runtime config directory: %v", err)
		}
	}
	if err := os.WriteFile(s.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write runtime config file: %v", err)
	}
	return nil
}
