// Package catalog holds the starter habits and shop items bundled with the server.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"habitheroes/internal/models"
)

//go:embed catalog.yaml
var catalogYAML []byte

// StarterHabit is a master habit seeded into new families
type StarterHabit struct {
	Name         string `yaml:"name" json:"name"`
	Icon         string `yaml:"icon" json:"icon"`
	XPReward     int    `yaml:"xp_reward" json:"xp_reward"`
	ReminderTime string `yaml:"reminder_time" json:"reminder_time,omitempty"`
}

// Item is an avatar or gear piece children can unlock with reward points
type Item struct {
	ID   string          `yaml:"id" json:"id"`
	Name string          `yaml:"name" json:"name"`
	Cost int             `yaml:"cost" json:"cost"`
	Kind models.ItemKind `yaml:"-" json:"kind"`
}

// Catalog is the parsed catalog document
type Catalog struct {
	MasterHabits []StarterHabit `yaml:"master_habits" json:"master_habits"`
	Avatars      []Item         `yaml:"avatars" json:"avatars"`
	Gear         []Item         `yaml:"gear" json:"gear"`
}

var (
	loadOnce sync.Once
	loaded   *Catalog
	loadErr  error
)

// Load parses the embedded catalog once
func Load() (*Catalog, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Parse(catalogYAML)
	})
	return loaded, loadErr
}

// Parse decodes and checks a catalog document
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := map[string]bool{}
	for i := range c.Avatars {
		c.Avatars[i].Kind = models.ItemAvatar
	}
	for i := range c.Gear {
		c.Gear[i].Kind = models.ItemGear
	}
	for _, item := range append(append([]Item{}, c.Avatars...), c.Gear...) {
		key := string(item.Kind) + ":" + item.ID
		if item.ID == "" || seen[key] {
			return nil, fmt.Errorf("catalog item %q is missing or duplicated", item.ID)
		}
		if item.Cost < 0 {
			return nil, fmt.Errorf("catalog item %q has a negative cost", item.ID)
		}
		seen[key] = true
	}
	for _, h := range c.MasterHabits {
		if h.Name == "" || h.XPReward <= 0 {
			return nil, fmt.Errorf("catalog habit %q is invalid", h.Name)
		}
	}
	return &c, nil
}

// Find looks up an item by kind and id
func (c *Catalog) Find(kind models.ItemKind, id string) (Item, bool) {
	var items []Item
	switch kind {
	case models.ItemAvatar:
		items = c.Avatars
	case models.ItemGear:
		items = c.Gear
	}
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

// FreeAvatars returns the ids of avatars every child starts with
func (c *Catalog) FreeAvatars() []string {
	var ids []string
	for _, a := range c.Avatars {
		if a.Cost == 0 {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
