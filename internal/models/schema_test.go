package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchemaIsValid(t *testing.T) {
	for _, schema := range DefaultSchema() {
		assert.NoError(t, schema.Validate(), schema.Name)
	}
}

func TestCollectionSchemaValidate(t *testing.T) {
	withIndex := func(idx IndexSchema) CollectionSchema {
		return CollectionSchema{Name: "Orders", PrimaryKey: AttrOrderID, Indexes: []IndexSchema{idx}}
	}

	tests := []struct {
		name   string
		schema CollectionSchema
	}{
		{"no primary key", CollectionSchema{Name: "Orders"}},
		{"empty natural order attribute", CollectionSchema{Name: "Orders", PrimaryKey: AttrOrderID, NaturalOrder: []string{""}}},
		{"keys only projection", withIndex(IndexSchema{
			Name: "ByProduct", Kind: IndexGlobal, PartitionKey: AttrProductID, Projection: "KEYS_ONLY",
		})},
		{"unknown kind", withIndex(IndexSchema{
			Name: "ByProduct", Kind: "REGIONAL", PartitionKey: AttrProductID, Projection: ProjectionAll,
		})},
		{"local index on another partition key", withIndex(IndexSchema{
			Name: "ByCustomer", Kind: IndexLocal, PartitionKey: AttrCustomerID, SortKey: AttrOrderDate, Projection: ProjectionAll,
		})},
		{"local index without sort key", withIndex(IndexSchema{
			Name: "ByOrder", Kind: IndexLocal, PartitionKey: AttrOrderID, Projection: ProjectionAll,
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.schema.Validate(), ErrInvalidArgument)
		})
	}
}
