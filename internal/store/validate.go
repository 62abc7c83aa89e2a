package store

import (
	"fmt"
	"sort"
	"strconv"

	"order-store/internal/models"

	"github.com/shopspring/decimal"
)

// validateRecord checks the primary key and numeric attributes of a record
// against its collection schema and returns the primary key value.
func validateRecord(schema models.CollectionSchema, rec models.Record) (string, error) {
	if len(rec) == 0 {
		return "", fmt.Errorf("%w: empty record for %s", models.ErrInvalidArgument, schema.Name)
	}

	key := rec[schema.PrimaryKey]
	if key == "" {
		return "", fmt.Errorf("%w: missing primary key %q for %s", models.ErrInvalidArgument, schema.PrimaryKey, schema.Name)
	}

	// Deterministic error messages regardless of map order
	attrs := make([]string, 0, len(schema.Numeric))
	for attr := range schema.Numeric {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	for _, attr := range attrs {
		val, ok := rec[attr]
		if !ok {
			continue
		}
		if err := checkNumeric(schema.Numeric[attr], val); err != nil {
			return key, fmt.Errorf("%w: %s=%q: %v", models.ErrCoercion, attr, val, err)
		}
	}

	return key, nil
}

func checkNumeric(kind models.NumericKind, val string) error {
	switch kind {
	case models.NumericInteger:
		_, err := strconv.ParseInt(val, 10, 64)
		return err
	default:
		_, err := decimal.NewFromString(val)
		return err
	}
}
