package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"order-store/internal/models"

	"go.uber.org/zap"
)

const bom = "\ufeff"

// DataFileName is the file a collection is loaded from in a data directory
func DataFileName(collection string) string {
	return "df_" + collection + ".csv"
}

// ImportCSV reads a CSV stream whose first line names the attributes and
// imports every following line as one row. Empty cells are left out of the
// record. Lines with the wrong number of fields are skipped.
func (im *Importer) ImportCSV(ctx context.Context, collection string, r io.Reader, source string) (*Result, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidArgument, source, err)
	}
	return im.run(ctx, collection, source, rows)
}

// ImportFile imports a CSV file into a collection
func (im *Importer) ImportFile(ctx context.Context, collection, path string) (*Result, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: import file %s", models.ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return im.ImportCSV(ctx, collection, f, filepath.Base(path))
}

// ImportDir imports df_<Collection>.csv for each named collection found in dir.
// Missing files are skipped.
func (im *Importer) ImportDir(ctx context.Context, dir string, collections []string) ([]*Result, error) {
	var results []*Result
	for _, collection := range collections {
		res, err := im.ImportFile(ctx, collection, filepath.Join(dir, DataFileName(collection)))
		if errors.Is(err, models.ErrNotFound) {
			im.logger.Info("No import file, skipping", zap.String("collection", collection))
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ReadRecords parses a CSV stream the way ImportCSV does without writing it.
// Malformed lines are returned as RowErrors.
func ReadRecords(r io.Reader) ([]models.Record, []RowError, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}

	var (
		records []models.Record
		skipped []RowError
	)
	for _, rw := range rows {
		if rw.err != nil {
			skipped = append(skipped, RowError{Row: rw.num, Reason: rw.err.Error()})
			continue
		}
		records = append(records, rw.rec)
	}
	return records, skipped, nil
}

func readCSV(r io.Reader) ([]row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], bom)
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	reader.FieldsPerRecord = len(header)

	var rows []row
	for num := 1; ; num++ {
		fields, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			return nil, fmt.Errorf("line %d: %w", num+1, err)
		}

		rec := make(models.Record, len(header))
		for i, v := range fields {
			if i >= len(header) {
				break
			}
			if v = strings.TrimSpace(v); v != "" {
				rec[header[i]] = v
			}
		}

		out := row{num: num, rec: rec}
		switch {
		case errors.Is(err, csv.ErrFieldCount):
			out.err = fmt.Errorf("%w: expected %d fields, got %d", models.ErrInvalidArgument, len(header), len(fields))
		case err != nil:
			out.err = fmt.Errorf("%w: %v", models.ErrInvalidArgument, parseErr.Err)
		}
		rows = append(rows, out)
	}
}
