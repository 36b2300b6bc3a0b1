// Package storage persists radar state that outlives a session.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valter-silva-au/signal-radar/pkg/models"
	"gopkg.in/yaml.v3"
)

// SubscriptionFile represents the top-level structure of subscriptions.yaml.
type SubscriptionFile struct {
	Version       string                         `yaml:"version"`
	Subscriptions map[string]models.Subscription `yaml:"subscriptions"`
}

// SubscriptionStore defines the interface for the local record of
// successful subscribe calls.
type SubscriptionStore interface {
	Add(sub models.Subscription) error
	Remove(id string) error
	Get(id string) (*models.Subscription, error)
	List() ([]models.Subscription, error)
	ForEntity(entityID string) ([]models.Subscription, error)
	// Record loads, adds and saves under a file lock. Recording an id that
	// is already stored is a no-op.
	Record(sub models.Subscription) error
	Load() error
	Save() error
}

type fileSubscriptionStore struct {
	basePath string
	data     SubscriptionFile
}

// NewSubscriptionStore creates a SubscriptionStore backed by
// subscriptions.yaml in the given base directory.
func NewSubscriptionStore(basePath string) SubscriptionStore {
	return &fileSubscriptionStore{
		basePath: basePath,
		data:     emptySubscriptionFile(),
	}
}

func emptySubscriptionFile() SubscriptionFile {
	return SubscriptionFile{
		Version:       "1.0",
		Subscriptions: make(map[string]models.Subscription),
	}
}

func (s *fileSubscriptionStore) filePath() string {
	return filepath.Join(s.basePath, "subscriptions.yaml")
}

func (s *fileSubscriptionStore) lockPath() string {
	return filepath.Join(s.basePath, ".subscriptions.lock")
}

func (s *fileSubscriptionStore) Add(sub models.Subscription) error {
	if strings.TrimSpace(sub.ID) == "" {
		return fmt.Errorf("adding subscription: ID must not be empty")
	}
	if sub.EntityID == "" || sub.Contact == "" {
		return fmt.Errorf("adding subscription %s: entity and contact are required", sub.ID)
	}
	if _, exists := s.data.Subscriptions[sub.ID]; exists {
		return fmt.Errorf("adding subscription: %s already exists", sub.ID)
	}
	s.data.Subscriptions[sub.ID] = sub
	return nil
}

func (s *fileSubscriptionStore) Remove(id string) error {
	if _, exists := s.data.Subscriptions[id]; !exists {
		return fmt.Errorf("removing subscription: %s not found", id)
	}
	delete(s.data.Subscriptions, id)
	return nil
}

func (s *fileSubscriptionStore) Get(id string) (*models.Subscription, error) {
	sub, exists := s.data.Subscriptions[id]
	if !exists {
		return nil, fmt.Errorf("subscription %s not found", id)
	}
	return &sub, nil
}

// List returns every subscription, oldest first.
func (s *fileSubscriptionStore) List() ([]models.Subscription, error) {
	subs := make([]models.Subscription, 0, len(s.data.Subscriptions))
	for _, sub := range s.data.Subscriptions {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].Created.Equal(subs[j].Created) {
			return subs[i].Created.Before(subs[j].Created)
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

func (s *fileSubscriptionStore) ForEntity(entityID string) ([]models.Subscription, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var result []models.Subscription
	for _, sub := range all {
		if sub.EntityID == entityID {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (s *fileSubscriptionStore) Record(sub models.Subscription) error {
	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return fmt.Errorf("recording subscription: creating directory: %w", err)
	}
	unlock, err := lockFile(s.lockPath())
	if err != nil {
		return fmt.Errorf("recording subscription: %w", err)
	}
	defer func() { _ = unlock() }()

	if err := s.Load(); err != nil {
		return err
	}
	if _, exists := s.data.Subscriptions[sub.ID]; exists {
		return nil
	}
	if err := s.Add(sub); err != nil {
		return err
	}
	return s.Save()
}

func (s *fileSubscriptionStore) Load() error {
	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			s.data = emptySubscriptionFile()
			return nil
		}
		return fmt.Errorf("loading subscriptions: %w", err)
	}

	var sf SubscriptionFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("loading subscriptions: parsing YAML: %w", err)
	}
	if sf.Subscriptions == nil {
		sf.Subscriptions = make(map[string]models.Subscription)
	}
	s.data = sf
	return nil
}

func (s *fileSubscriptionStore) Save() error {
	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return fmt.Errorf("saving subscriptions: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&s.data)
	if err != nil {
		return fmt.Errorf("saving subscriptions: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(s.filePath(), data, 0o600); err != nil {
		return fmt.Errorf("saving subscriptions: writing file: %w", err)
	}
	return nil
}
