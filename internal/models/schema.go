package models

import "fmt"

// IndexKind distinguishes global from local secondary indexes
type IndexKind string

const (
	IndexGlobal IndexKind = "GLOBAL"
	IndexLocal  IndexKind = "LOCAL"
)

// ProjectionAll projects every attribute of the base record into the index
const ProjectionAll = "ALL"

// NumericKind is the number format a numeric attribute must satisfy
type NumericKind string

const (
	NumericDecimal NumericKind = "decimal"
	NumericInteger NumericKind = "integer"
)

// IndexSchema declares a secondary index over a collection
type IndexSchema struct {
	Name         string    `json:"name"`
	Kind         IndexKind `json:"kind"`
	PartitionKey string    `json:"partition_key"`
	SortKey      string    `json:"sort_key,omitempty"`
	Projection   string    `json:"projection"`
}

// CollectionSchema is the fixed configuration of one collection
type CollectionSchema struct {
	Name         string                 `json:"name"`
	PrimaryKey   string                 `json:"primary_key"`
	NaturalOrder []string               `json:"natural_order,omitempty"`
	Numeric      map[string]NumericKind `json:"numeric,omitempty"`
	Indexes      []IndexSchema          `json:"indexes,omitempty"`
}

// Index returns the named index declared on the collection
func (s CollectionSchema) Index(name string) (IndexSchema, bool) {
	for _, idx := range s.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexSchema{}, false
}

// Validate checks that the schema describes something every backend can serve.
// Queries return full records, so indexes must project all attributes. A local
// index shares the collection's partition key.
func (s CollectionSchema) Validate() error {
	if s.Name == "" || s.PrimaryKey == "" {
		return fmt.Errorf("%w: collection needs a name and a primary key", ErrInvalidArgument)
	}
	for _, attr := range s.NaturalOrder {
		if attr == "" {
			return fmt.Errorf("%w: %s: empty natural order attribute", ErrInvalidArgument, s.Name)
		}
	}

	for _, idx := range s.Indexes {
		if idx.Name == "" || idx.PartitionKey == "" {
			return fmt.Errorf("%w: %s: index needs a name and a partition key", ErrInvalidArgument, s.Name)
		}
		if idx.Projection != ProjectionAll {
			return fmt.Errorf("%w: %s: unsupported projection %q", ErrInvalidArgument, idx.Name, idx.Projection)
		}
		switch idx.Kind {
		case IndexGlobal:
		case IndexLocal:
			if idx.PartitionKey != s.PrimaryKey {
				return fmt.Errorf("%w: %s: local index must be partitioned by %q", ErrInvalidArgument, idx.Name, s.PrimaryKey)
			}
			if idx.SortKey == "" {
				return fmt.Errorf("%w: %s: local index needs a sort key", ErrInvalidArgument, idx.Name)
			}
		default:
			return fmt.Errorf("%w: %s: unknown index kind %q", ErrInvalidArgument, idx.Name, idx.Kind)
		}
	}
	return nil
}

// SchemaStatus reports the outcome of provisioning one collection
type SchemaStatus string

const (
	SchemaCreated SchemaStatus = "created"
	SchemaExists  SchemaStatus = "exists"
)

// IndexEntry is one derived index row pointing at a base record
type IndexEntry struct {
	Index     string `json:"index"`
	Partition string `json:"partition"`
	Sort      string `json:"sort,omitempty"`
	Key       string `json:"key"`
}

// Write is a base record write together with its derived index entries.
// Backends must commit both as one unit.
type Write struct {
	Collection CollectionSchema
	Key        string
	Record     Record
	Entries    []IndexEntry
}

// IndexQuery selects index entries by partition and optionally by exact sort value
type IndexQuery struct {
	Collection CollectionSchema
	Index      IndexSchema
	Partition  string
	Sort       string
}

// DefaultSchema returns the three collections and the two Orders indexes.
// Orders are keyed by order_id alone; order_date is the natural sort order.
func DefaultSchema() []CollectionSchema {
	return []CollectionSchema{
		{
			Name:       CollectionProducts,
			PrimaryKey: AttrProductID,
			Numeric: map[string]NumericKind{
				AttrPrice: NumericDecimal,
			},
		},
		{
			Name:       CollectionCustomers,
			PrimaryKey: AttrCustomerID,
		},
		{
			Name:         CollectionOrders,
			PrimaryKey:   AttrOrderID,
			NaturalOrder: []string{AttrOrderDate, AttrOrderID},
			Numeric: map[string]NumericKind{
				AttrQuantity:   NumericInteger,
				AttrTotalPrice: NumericDecimal,
			},
			Indexes: []IndexSchema{
				{
					Name:         IndexProduct,
					Kind:         IndexGlobal,
					PartitionKey: AttrProductID,
					Projection:   ProjectionAll,
				},
				{
					Name:         IndexOrderDate,
					Kind:         IndexLocal,
					PartitionKey: AttrOrderID,
					SortKey:      AttrOrderDate,
					Projection:   ProjectionAll,
				},
			},
		},
	}
}
