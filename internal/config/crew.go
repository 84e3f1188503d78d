package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskcrew/internal/worker"
)

// Member is one worker of the roster. A zero MaxCapacity takes the role
// default from the environment.
type Member struct {
	ID          string      `yaml:"id"`
	Role        worker.Role `yaml:"role"`
	MaxCapacity int         `yaml:"max_capacity,omitempty"`
}

type Crew struct {
	Workers []Member `yaml:"workers"`
}

func DefaultCrew() *Crew {
	return &Crew{Workers: []Member{
		{ID: "ProjectManager", Role: worker.RoleManager},
		{ID: "Engineer1", Role: worker.RoleEngineer},
		{ID: "Engineer2", Role: worker.RoleEngineer},
		{ID: "Engineer3", Role: worker.RoleEngineer},
		{ID: "Tester1", Role: worker.RoleTester},
		{ID: "Tester2", Role: worker.RoleTester},
	}}
}

// LoadCrew reads the roster from path. A missing file yields the default
// roster.
func LoadCrew(path string) (*Crew, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultCrew(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read crew file: %w", err)
	}
	var crew Crew
	if err := yaml.Unmarshal(data, &crew); err != nil {
		return nil, fmt.Errorf("failed to parse crew file %s: %w", path, err)
	}
	if err := crew.validate(); err != nil {
		return nil, fmt.Errorf("invalid crew file %s: %w", path, err)
	}
	return &crew, nil
}

func (c *Crew) validate() error {
	if len(c.Workers) == 0 {
		return errors.New("no workers")
	}
	seen := map[string]bool{}
	var errs []error
	for i, m := range c.Workers {
		switch {
		case m.ID == "":
			errs = append(errs, fmt.Errorf("worker #%d has no id", i+1))
		case seen[m.ID]:
			errs = append(errs, fmt.Errorf("worker %s is listed twice", m.ID))
		}
		seen[m.ID] = true
		if !m.Role.Valid() {
			errs = append(errs, fmt.Errorf("worker %s has unknown role %q", m.ID, m.Role))
		}
		if m.MaxCapacity < 0 {
			errs = append(errs, fmt.Errorf("worker %s has negative capacity", m.ID))
		}
	}
	return errors.Join(errs...)
}

// Register adds every member to reg in roster order.
func (c *Crew) Register(reg *worker.Registry, caps *CapacityEnv) error {
	for _, m := range c.Workers {
		capacity := m.MaxCapacity
		if capacity == 0 {
			capacity = caps.Capacity(m.Role)
		}
		if err := reg.Register(m.ID, m.Role, capacity); err != nil {
			return err
		}
	}
	return nil
}
