package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"storefront-builder-service/internal/models"
)

func toJSONB(v interface{}) (models.JSONB, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out models.JSONB
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromJSONB(data models.JSONB, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// storeDocument carries every store field except the nested children
func storeDocument(s *models.Store) (*models.StoreDocument, error) {
	meta := *s
	meta.Products = nil
	meta.Collections = nil
	data, err := toJSONB(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode store document: %w", err)
	}
	delete(data, "products")
	delete(data, "collections")
	return &models.StoreDocument{
		ID:         s.ID,
		MerchantID: s.MerchantID,
		URLSlug:    s.URLSlug,
		Name:       s.Name,
		Data:       data,
	}, nil
}

// productDocument encodes p. The ID is left for the document store to assign
// unless reuseID is set and p already carries a UUID.
func productDocument(storeID string, position int, p models.Product, reuseID bool) (*models.ProductDocument, error) {
	id := uuid.Nil
	if reuseID {
		if parsed, err := uuid.Parse(p.ID); err == nil {
			id = parsed
		}
	}
	p.ID = ""
	data, err := toJSONB(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode product document: %w", err)
	}
	delete(data, "id")
	return &models.ProductDocument{ID: id, StoreID: storeID, Position: position, Data: data}, nil
}

func collectionDocument(storeID string, position int, c models.Collection, reuseID bool) (*models.CollectionDocument, error) {
	id := uuid.Nil
	if reuseID {
		if parsed, err := uuid.Parse(c.ID); err == nil {
			id = parsed
		}
	}
	c.ID = ""
	data, err := toJSONB(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode collection document: %w", err)
	}
	delete(data, "id")
	return &models.CollectionDocument{ID: id, StoreID: storeID, Position: position, Data: data}, nil
}

// storeFromDocuments rebuilds a store graph from its cloud documents
func storeFromDocuments(doc models.StoreDocument, products []models.ProductDocument, collections []models.CollectionDocument) (*models.Store, error) {
	var s models.Store
	if err := fromJSONB(doc.Data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode store %s: %w", doc.ID, err)
	}
	s.ID = doc.ID
	s.MerchantID = doc.MerchantID
	s.URLSlug = doc.URLSlug
	s.Name = doc.Name

	sort.SliceStable(products, func(i, j int) bool { return products[i].Position < products[j].Position })
	s.Products = make([]models.Product, 0, len(products))
	for _, pd := range products {
		var p models.Product
		if err := fromJSONB(pd.Data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode product %s: %w", pd.ID, err)
		}
		p.ID = pd.ID.String()
		s.Products = append(s.Products, p)
	}

	sort.SliceStable(collections, func(i, j int) bool { return collections[i].Position < collections[j].Position })
	s.Collections = make([]models.Collection, 0, len(collections))
	for _, cd := range collections {
		var c models.Collection
		if err := fromJSONB(cd.Data, &c); err != nil {
			return nil, fmt.Errorf("failed to decode collection %s: %w", cd.ID, err)
		}
		c.ID = cd.ID.String()
		s.Collections = append(s.Collections, c)
	}
	return &s, nil
}
