// Package catalog holds the immutable 5-day onboarding curriculum.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"megabot.app/onboarding/internal/model"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// ErrInvalidDay is returned for day numbers outside 1..5.
var ErrInvalidDay = errors.New("invalid day")

type file struct {
	Version int                   `yaml:"version"`
	Days    []model.DayDefinition `yaml:"days"`
}

// Catalog is a read-only lookup over the five day definitions.
type Catalog struct {
	days []model.DayDefinition
}

// Default returns the embedded MegaBot curriculum.
func Default() *Catalog {
	c, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	if err := validate(f.Days); err != nil {
		return nil, err
	}
	return &Catalog{days: f.Days}, nil
}

// New builds a catalog from definitions, mostly for tests.
func New(days []model.DayDefinition) (*Catalog, error) {
	if err := validate(days); err != nil {
		return nil, err
	}
	return &Catalog{days: cloneDays(days)}, nil
}

func validate(days []model.DayDefinition) error {
	if len(days) != model.LastDay {
		return fmt.Errorf("catalog must define exactly %d days, got %d", model.LastDay, len(days))
	}
	for i, day := range days {
		if day.DayNumber != i+1 {
			return fmt.Errorf("day at position %d has number %d, want %d", i+1, day.DayNumber, i+1)
		}
		if len(day.Tasks) == 0 {
			return fmt.Errorf("day %d has no tasks", day.DayNumber)
		}
		seen := make(map[string]bool, len(day.Tasks))
		required := 0
		for _, t := range day.Tasks {
			if t.ID == "" {
				return fmt.Errorf("day %d has a task without an id", day.DayNumber)
			}
			if seen[t.ID] {
				return fmt.Errorf("day %d has duplicate task id %q", day.DayNumber, t.ID)
			}
			seen[t.ID] = true
			if !t.Kind.Valid() {
				return fmt.Errorf("day %d task %q has invalid kind %q", day.DayNumber, t.ID, t.Kind)
			}
			if t.Required {
				required++
			}
		}
		if required == 0 {
			return fmt.Errorf("day %d has no required tasks", day.DayNumber)
		}
	}
	return nil
}

// GetDay returns the definition of day n.
func (c *Catalog) GetDay(n int) (model.DayDefinition, error) {
	if n < model.FirstDay || n > model.LastDay {
		return model.DayDefinition{}, fmt.Errorf("%w: %d", ErrInvalidDay, n)
	}
	return cloneDay(c.days[n-1]), nil
}

// Days returns a copy of all day definitions in order.
func (c *Catalog) Days() []model.DayDefinition {
	return cloneDays(c.days)
}

func cloneDays(days []model.DayDefinition) []model.DayDefinition {
	out := make([]model.DayDefinition, len(days))
	for i, d := range days {
		out[i] = cloneDay(d)
	}
	return out
}

func cloneDay(d model.DayDefinition) model.DayDefinition {
	d.Tasks = append([]model.TaskDefinition(nil), d.Tasks...)
	return d
}

// InitializeDays snapshots the catalog into five fresh DayProgress values.
// The snapshot is detached: later catalog changes never reach it.
func (c *Catalog) InitializeDays() []model.DayProgress {
	days := make([]model.DayProgress, 0, len(c.days))
	for _, def := range c.days {
		tasks := make([]model.TaskState, 0, len(def.Tasks))
		for _, t := range def.Tasks {
			tasks = append(tasks, model.TaskState{
				TaskID:      t.ID,
				Title:       t.Title,
				Description: t.Description,
				Kind:        t.Kind,
				Required:    t.Required,
			})
		}
		days = append(days, model.DayProgress{
			DayNumber:   def.DayNumber,
			Title:       def.Title,
			Description: def.Description,
			Tasks:       tasks,
		})
	}
	return days
}

// LoadOrDefault loads the override file at path, or the embedded catalog
// when path is empty.
func LoadOrDefault(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
