package keyspace

import (
	"testing"

	"order-store/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestSortRecords(t *testing.T) {
	records := []models.Record{
		{"id": "3", "date": "2024-01-01"},
		{"id": "2", "date": "2023-06-01"},
		{"id": "1", "date": "2024-01-01"},
		{"id": "4"},
	}

	SortRecords(records, "date", "", "id")

	var ids []string
	for _, r := range records {
		ids = append(ids, r["id"])
	}
	assert.Equal(t, []string{"4", "2", "1", "3"}, ids)
}

func TestSortRecords_NoAttributesKeepsOrder(t *testing.T) {
	records := []models.Record{{"id": "b"}, {"id": "a"}}
	SortRecords(records)
	assert.Equal(t, "b", records[0]["id"])
}
