package persona

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Store exposes persona retrieval for services and HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
	// Default returns the persona used when a caller does not pick one.
	Default() Persona
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
// The first item is the default persona.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the configured personas.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// Default returns the first persona, or the built-in seed when the store is empty.
func (s *MemoryStore) Default() Persona {
	if len(s.items) == 0 {
		return Seed()[0]
	}
	return s.items[0]
}

// LoadStore returns the personas in the YAML file at path, or the built-in
// seed when path is empty.
func LoadStore(path string) (*MemoryStore, error) {
	if path == "" {
		return NewMemoryStore(Seed()), nil
	}
	items, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(items), nil
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadFile reads personas from a YAML file of the form `personas: [...]`.
func LoadFile(path string) ([]Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read persona file %s", path)
	}
	return Parse(raw)
}

// Parse decodes a YAML persona document and validates it.
func Parse(raw []byte) ([]Persona, error) {
	var doc personaFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode persona yaml")
	}
	if len(doc.Personas) == 0 {
		return nil, errors.New("persona file defines no personas")
	}

	seen := make(map[string]struct{}, len(doc.Personas))
	for i, p := range doc.Personas {
		if p.ID == "" {
			return nil, errors.Errorf("persona #%d has no id", i+1)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, errors.Errorf("duplicate persona id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Phone == "" {
			doc.Personas[i].Phone = DefaultPhone
		}
	}
	return doc.Personas, nil
}
