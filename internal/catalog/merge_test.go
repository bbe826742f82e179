package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/timmy/catalogetl/internal/domain"
)

func TestMergeBySKUOverlaysSuppliedFields(t *testing.T) {
	first := &domain.CatalogItem{SKU: "A", Price: floatPtr(10)}
	second := &domain.CatalogItem{SKU: "A", Price: nil, Brand: strPtr("X")}

	merged := MergeBySKU([]*domain.CatalogItem{first, second})
	require.Len(t, merged, 1)
	assert.Equal(t, "A", merged[0].SKU)
	assert.Equal(t, 10.0, *merged[0].Price)
	assert.Equal(t, "X", *merged[0].Brand)

	assert.Nil(t, first.Brand, "input must not be mutated")
	assert.Nil(t, second.Price, "input must not be mutated")
}

func TestMergeBySKUSingletonIsIdentity(t *testing.T) {
	item := validItem()
	item.Categories = domain.StringList{"Home"}
	item.Variants = datatypes.JSON(`[{"color":"red"}]`)

	merged := MergeBySKU([]*domain.CatalogItem{item})
	require.Len(t, merged, 1)
	assert.Equal(t, item, merged[0])
	assert.NotSame(t, item, merged[0])
}

func TestMergeBySKUOrderAndTrimming(t *testing.T) {
	items := []*domain.CatalogItem{
		{SKU: " B ", Name: strPtr("b1")},
		{SKU: "A", Name: strPtr("a1")},
		{SKU: "", Name: strPtr("dropped")},
		nil,
		{SKU: "B", Name: strPtr("b2")},
		{SKU: "   ", Name: strPtr("dropped too")},
	}

	merged := MergeBySKU(items)
	require.Len(t, merged, 2)
	assert.Equal(t, "B", merged[0].SKU)
	assert.Equal(t, "b2", *merged[0].Name)
	assert.Equal(t, "A", merged[1].SKU)
	assert.Equal(t, " B ", items[0].SKU)
}

func TestMergeBySKUIgnoresEmptyValues(t *testing.T) {
	items := []*domain.CatalogItem{
		{SKU: "A", Name: strPtr("Lamp"), Categories: domain.StringList{"Home"}, Techs: datatypes.JSON(`{"w":1}`)},
		{SKU: "A", Name: strPtr(""), Categories: domain.StringList{}, Techs: datatypes.JSON("null")},
	}
	merged := MergeBySKU(items)
	require.Len(t, merged, 1)
	assert.Equal(t, "Lamp", *merged[0].Name)
	assert.Equal(t, domain.StringList{"Home"}, merged[0].Categories)
	assert.JSONEq(t, `{"w":1}`, string(merged[0].Techs))
}

func TestMergeBySKUEmptyInput(t *testing.T) {
	assert.Empty(t, MergeBySKU(nil))
}
