package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mindbridge/intake/internal/models"
)

// TimeSlot is one offerable session time.
type TimeSlot struct {
	Label     string `yaml:"label"`
	Day       string `yaml:"day"`
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	Therapist string `yaml:"therapist"`
}

// Catalog holds the static choice lists shown in the side panels.
type Catalog struct {
	Specialists []models.SpecialistOption `yaml:"specialists"`
	TimeSlots   []TimeSlot                `yaml:"time_slots"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		Specialists: models.SpecialistOptions,
		TimeSlots: []TimeSlot{
			{Label: "Monday 2:00 PM", Day: "Monday", Start: "14:00", End: "15:00", Therapist: "Dr. Sarah Johnson"},
			{Label: "Tuesday 10:00 AM", Day: "Tuesday", Start: "10:00", End: "11:00", Therapist: "Dr. Sarah Johnson"},
			{Label: "Wednesday 4:00 PM", Day: "Wednesday", Start: "16:00", End: "17:00", Therapist: "Dr. Michael Chen"},
			{Label: "Thursday 11:00 AM", Day: "Thursday", Start: "11:00", End: "12:00", Therapist: "Dr. Michael Chen"},
			{Label: "Friday 3:00 PM", Day: "Friday", Start: "15:00", End: "16:00", Therapist: "Dr. Emily Rodriguez"},
		},
	}
}

// Load reads a catalog from a YAML file, filling omitted sections from the
// defaults. An empty path returns the defaults unchanged.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(override.Specialists) > 0 {
		c.Specialists = override.Specialists
	}
	if len(override.TimeSlots) > 0 {
		c.TimeSlots = override.TimeSlots
	}
	return c, nil
}

// SlotByLabel finds a time slot by its display label.
func (c *Catalog) SlotByLabel(label string) (TimeSlot, bool) {
	for _, s := range c.TimeSlots {
		if s.Label == label {
			return s, true
		}
	}
	return TimeSlot{}, false
}

// SpecialistTitle returns the display title for a key, or the raw key if
// the catalog does not know it.
func (c *Catalog) SpecialistTitle(key models.SpecialistKey) string {
	for _, s := range c.Specialists {
		if s.Key == key {
			return s.Title
		}
	}
	return string(key)
}
