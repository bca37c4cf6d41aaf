package menu

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCategories() []Category {
	return []Category{
		{
			Key:  "coffee",
			Name: "Coffee",
			Items: []Item{
				{Key: "espresso", Name: "espresso", Price: 2.50},
				{Key: "latte", Name: "latte", Price: 4.00},
			},
		},
		{
			Key:  "desserts",
			Name: "Desserts",
			Items: []Item{
				{Key: "tiramisu", Name: "tiramisu", Price: 5.50},
			},
		},
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name       string
		categories []Category
	}{
		{
			name:       "empty category key",
			categories: []Category{{Name: "Coffee"}},
		},
		{
			name: "duplicate category key",
			categories: []Category{
				{Key: "coffee", Name: "Coffee"},
				{Key: "coffee", Name: "More Coffee"},
			},
		},
		{
			name: "empty item key",
			categories: []Category{
				{Key: "coffee", Items: []Item{{Name: "espresso", Price: 2.50}}},
			},
		},
		{
			name: "duplicate item key",
			categories: []Category{
				{Key: "coffee", Items: []Item{
					{Key: "espresso", Price: 2.50},
					{Key: "espresso", Price: 3.00},
				}},
			},
		},
		{
			name: "negative price",
			categories: []Category{
				{Key: "coffee", Items: []Item{{Key: "espresso", Price: -1}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.categories)
			assert.Error(t, err)
		})
	}
}

func TestCatalog_Lookups(t *testing.T) {
	catalog, err := New(testCategories())
	require.NoError(t, err)

	cats := catalog.Categories()
	require.Len(t, cats, 2)
	assert.Equal(t, "coffee", cats[0].Key)
	assert.Equal(t, "desserts", cats[1].Key)

	items := catalog.Items("coffee")
	require.Len(t, items, 2)
	assert.Equal(t, "espresso", items[0].Key)
	assert.Equal(t, "latte", items[1].Key)

	assert.Empty(t, catalog.Items("sushi"))

	assert.Equal(t, "Coffee", catalog.CategoryName("coffee"))
	assert.Equal(t, "sushi", catalog.CategoryName("sushi"))

	item, err := catalog.Item("coffee", "espresso")
	require.NoError(t, err)
	assert.Equal(t, "espresso", item.Name)
	assert.Equal(t, 2.50, item.Price)

	_, err = catalog.Item("coffee", "flat_white")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = catalog.Item("sushi", "espresso")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu.yaml")
	content := `
categories:
  - key: coffee
    name: Coffee
    items:
      - key: espresso
        name: espresso
        price: 2.50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	catalog, err := Load(path)
	require.NoError(t, err)

	item, err := catalog.Item("coffee", "espresso")
	require.NoError(t, err)
	assert.Equal(t, 2.50, item.Price)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "$2.50", FormatPrice(2.5))
	assert.Equal(t, "$0.00", FormatPrice(0))
	assert.Equal(t, "$3.10", FormatPrice(3.1))
}
