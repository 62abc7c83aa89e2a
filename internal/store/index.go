package store

import (
	"fmt"

	"order-store/internal/models"
)

// DeriveIndexEntries computes one entry per index declared on the collection.
// Every key attribute of every index must be present, otherwise the record
// would exist without its index entries.
func DeriveIndexEntries(schema models.CollectionSchema, key string, rec models.Record) ([]models.IndexEntry, error) {
	if len(schema.Indexes) == 0 {
		return nil, nil
	}

	entries := make([]models.IndexEntry, 0, len(schema.Indexes))
	for _, idx := range schema.Indexes {
		partition := rec[idx.PartitionKey]
		if partition == "" {
			return nil, fmt.Errorf("%w: %s requires attribute %q", models.ErrInvalidArgument, idx.Name, idx.PartitionKey)
		}

		entry := models.IndexEntry{
			Index:     idx.Name,
			Partition: partition,
			Key:       key,
		}

		if idx.SortKey != "" {
			sortVal := rec[idx.SortKey]
			if sortVal == "" {
				return nil, fmt.Errorf("%w: %s requires attribute %q", models.ErrInvalidArgument, idx.Name, idx.SortKey)
			}
			entry.Sort = sortVal
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
