// Package keyspace holds the key layout and record encoding shared by the
// ordered key-value backends (Pebble, Redis) and the entry ordering used by all of them.
package keyspace

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"order-store/internal/models"
)

// Sep separates key components. It sorts below every printable byte so that
// prefix scans return entries in (sort value, primary key) order.
const Sep = "\x00"

// EntryLess orders index entries by sort value then primary key
func EntryLess(a, b models.IndexEntry) bool {
	if a.Sort != b.Sort {
		return a.Sort < b.Sort
	}
	return a.Key < b.Key
}

// SortRecords orders records by each attribute in turn. Empty attribute names are ignored.
func SortRecords(records []models.Record, attrs ...string) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, attr := range attrs {
			if attr == "" {
				continue
			}
			if records[i][attr] != records[j][attr] {
				return records[i][attr] < records[j][attr]
			}
		}
		return false
	})
}

// Join builds a key from components
func Join(parts ...string) string {
	return strings.Join(parts, Sep)
}

// CheckComponents rejects values that would break the key layout
func CheckComponents(parts ...string) error {
	for _, p := range parts {
		if strings.Contains(p, Sep) {
			return fmt.Errorf("%w: key component contains NUL byte", models.ErrInvalidArgument)
		}
	}
	return nil
}

// RecordKey is the storage key of a base record
func RecordKey(collection, key string) string {
	return Join("r", collection, key)
}

// RecordPrefix is the common prefix of every record key of a collection
func RecordPrefix(collection string) string {
	return Join("r", collection, "")
}

// RefsKey holds the index entries that currently point at a record
func RefsKey(collection, key string) string {
	return Join("x", collection, key)
}

// SchemaKey marks a provisioned collection
func SchemaKey(collection string) string {
	return Join("s", collection)
}

// EntryKey is the storage key of an index entry
func EntryKey(e models.IndexEntry) string {
	return Join("i", e.Index, e.Partition, e.Sort, e.Key)
}

// EntryPrefix covers every entry of a partition, narrowed to one sort value when given
func EntryPrefix(index, partition, sortValue string) string {
	if sortValue == "" {
		return Join("i", index, partition, "")
	}
	return Join("i", index, partition, sortValue, "")
}

// PrefixEnd returns the smallest key greater than every key with the given prefix
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

// EncodeRecord serializes a record for storage
func EncodeRecord(rec models.Record) ([]byte, error) {
	return json.Marshal(rec)
}

// DecodeRecord deserializes a stored record
func DecodeRecord(data []byte) (models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

// EncodeEntries serializes the index entries of a record
func EncodeEntries(entries []models.IndexEntry) ([]byte, error) {
	return json.Marshal(entries)
}

// DecodeEntries deserializes the index entries of a record
func DecodeEntries(data []byte) ([]models.IndexEntry, error) {
	var entries []models.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode index entries: %w", err)
	}
	return entries, nil
}
