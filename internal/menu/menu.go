package menu

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned for lookups of unknown categories or items.
var ErrNotFound = errors.New("not found")

// Item is a single orderable menu entry.
type Item struct {
	Key   string  `yaml:"key"`
	Name  string  `yaml:"name"`
	Price float64 `yaml:"price"`
}

// Category groups items under a display name. Order of categories and
// items is the display order.
type Category struct {
	Key   string `yaml:"key"`
	Name  string `yaml:"name"`
	Items []Item `yaml:"items"`
}

type menuFile struct {
	Categories []Category `yaml:"categories"`
}

// Catalog is the read-only menu lookup. It is loaded once at process start
// and never mutated afterwards.
type Catalog struct {
	categories []Category
	byCategory map[string]map[string]Item
}

// Load reads the catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu file: %w", err)
	}

	var file menuFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse menu file: %w", err)
	}

	return New(file.Categories)
}

// New builds a catalog from category data, validating keys and prices.
func New(categories []Category) (*Catalog, error) {
	byCategory := make(map[string]map[string]Item, len(categories))
	for _, cat := range categories {
		if cat.Key == "" {
			return nil, fmt.Errorf("category %q has an empty key", cat.Name)
		}
		if _, exists := byCategory[cat.Key]; exists {
			return nil, fmt.Errorf("duplicate category key %q", cat.Key)
		}
		items := make(map[string]Item, len(cat.Items))
		for _, item := range cat.Items {
			if item.Key == "" {
				return nil, fmt.Errorf("item %q in category %q has an empty key", item.Name, cat.Key)
			}
			if _, exists := items[item.Key]; exists {
				return nil, fmt.Errorf("duplicate item key %q in category %q", item.Key, cat.Key)
			}
			if item.Price < 0 {
				return nil, fmt.Errorf("item %q in category %q has a negative price", item.Key, cat.Key)
			}
			items[item.Key] = item
		}
		byCategory[cat.Key] = items
	}

	return &Catalog{categories: categories, byCategory: byCategory}, nil
}

// Categories returns all categories in display order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Items returns the items of a category in display order. Unknown
// categories yield an empty slice.
func (c *Catalog) Items(categoryKey string) []Item {
	for _, cat := range c.categories {
		if cat.Key == categoryKey {
			out := make([]Item, len(cat.Items))
			copy(out, cat.Items)
			return out
		}
	}
	return nil
}

// CategoryName returns the display name for a category key, or the key
// itself when the category is unknown.
func (c *Catalog) CategoryName(categoryKey string) string {
	for _, cat := range c.categories {
		if cat.Key == categoryKey {
			return cat.Name
		}
	}
	return categoryKey
}

// Item looks up a single item within a category.
func (c *Catalog) Item(categoryKey, itemKey string) (Item, error) {
	items, ok := c.byCategory[categoryKey]
	if !ok {
		return Item{}, fmt.Errorf("unknown category %q: %w", categoryKey, ErrNotFound)
	}
	item, ok := items[itemKey]
	if !ok {
		return Item{}, fmt.Errorf("unknown item %q in category %q: %w", itemKey, categoryKey, ErrNotFound)
	}
	return item, nil
}

// FormatPrice formats an amount as currency with two decimal digits.
func FormatPrice(price float64) string {
	return fmt.Sprintf("$%.2f", price)
}
