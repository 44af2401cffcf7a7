package template

import (
	"embed"
	"fmt"
	"os"
)

//go:embed defaults/*.json
var defaults embed.FS

// Store holds the two schema templates loaded at start-up.
type Store struct {
	observation       Node
	businessObjective Node
}

// LoadStore reads the observation and business objective schemas. An empty path
// selects the built-in schema.
func LoadStore(observationPath, businessObjectivePath string) (*Store, error) {
	obs, err := loadSchema(observationPath, "defaults/observation.json")
	if err != nil {
		return nil, fmt.Errorf("loading observation template: %w", err)
	}
	biz, err := loadSchema(businessObjectivePath, "defaults/business_objective.json")
	if err != nil {
		return nil, fmt.Errorf("loading business objective template: %w", err)
	}
	return &Store{observation: obs, businessObjective: biz}, nil
}

// NewStore wraps already parsed schemas.
func NewStore(observation, businessObjective Node) *Store {
	return &Store{observation: observation, businessObjective: businessObjective}
}

func loadSchema(path, fallback string) (Node, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = defaults.ReadFile(fallback)
	}
	if err != nil {
		return nil, err
	}

	n, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if len(Leaves(n)) == 0 {
		return nil, fmt.Errorf("%w: schema has no answer slots", ErrParse)
	}
	return n, nil
}

// Observation returns a fresh copy of the observation schema.
func (s *Store) Observation() Named {
	return Named{Name: Observation, Root: Clone(s.observation)}
}

// BusinessObjective returns a fresh copy of the business objective schema.
func (s *Store) BusinessObjective() Named {
	return Named{Name: BusinessObjective, Root: Clone(s.businessObjective)}
}
