package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"storefront-builder-service/internal/models"
)

func TestReconciliationMap_Rewrite(t *testing.T) {
	m := NewReconciliationMap()
	m.Add("cloud-1", "local-1", "Mug")
	m.Add("cloud-2", "local-2", "")

	assert.Equal(t, 3, m.Len())
	assert.Equal(t,
		[]string{"cloud-1", "cloud-2", "unknown"},
		m.Rewrite([]string{"Mug", "local-2", "local-1", "unknown", "unknown"}),
	)

	id, ok := m.Resolve("local-2")
	assert.True(t, ok)
	assert.Equal(t, "cloud-2", id)

	_, ok = m.Resolve("")
	assert.False(t, ok)
}

func TestHydrate_PreservesCollectionOrder(t *testing.T) {
	st := &models.Store{
		Products: []models.Product{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}},
		Collections: []models.Collection{
			{ID: "c-1", ProductIDs: []string{"b", "gone", "a"}},
			{ID: "c-2"},
		},
	}

	hydrated := Hydrate(st)

	assert.Len(t, hydrated, 2)
	assert.Equal(t, "B", hydrated[0].Products[0].Name)
	assert.Equal(t, "A", hydrated[0].Products[1].Name)
	assert.Len(t, hydrated[0].Products, 2)
	assert.NotNil(t, hydrated[1].Products)
	assert.Empty(t, hydrated[1].Products)
	assert.Equal(t, []string{"b", "gone", "a"}, hydrated[0].ProductIDs)
}
