package writer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quotescraper/models"
)

// ReadRecords loads the rows of an artifact; the format follows the extension.
func ReadRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.TrimPrefix(filepath.Ext(path), ".") {
	case string(JSON):
		var records []Record
		if err := json.NewDecoder(file).Decode(&records); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return records, nil
	case string(CSV):
		return readCSV(file)
	default:
		return nil, fmt.Errorf("unknown artifact type %s", path)
	}
}

func readCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Columns)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, col := range Columns {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected column %q at %d, want %q", header[i], i, col)
		}
	}

	records := []Record{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		records = append(records, Record{
			Symbol:       row[0],
			Price:        row[1],
			Variation:    row[2],
			VariationPct: row[3],
			Status:       row[4],
			Timestamp:    row[5],
		})
	}
	return records, nil
}

// Read reloads an artifact into a batch. Rows whose status is a direction
// become quotes; noise and extraction_error rows become failures.
func Read(path string) (*models.Batch, error) {
	records, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}

	batch := &models.Batch{Outcomes: make([]models.Outcome, 0, len(records))}
	for _, r := range records {
		at, _ := time.Parse(time.RFC3339, r.Timestamp)
		if batch.StartedAt.IsZero() || (!at.IsZero() && at.Before(batch.StartedAt)) {
			batch.StartedAt = at
		}

		switch models.FailureReason(r.Status) {
		case models.ReasonNoise, models.ReasonExtraction:
			batch.Outcomes = append(batch.Outcomes, models.NewFailureOutcome(r.Symbol, models.FailureReason(r.Status), "loaded from artifact"))
			continue
		}

		q := models.Quote{Symbol: r.Symbol, Direction: models.Direction(r.Status), FetchedAt: at}
		if q.Price, err = decimal.NewFromString(r.Price); err != nil {
			return nil, fmt.Errorf("%s: price: %w", r.Symbol, err)
		}
		if q.Variation, err = decimal.NewFromString(r.Variation); err != nil {
			return nil, fmt.Errorf("%s: variation: %w", r.Symbol, err)
		}
		if q.VariationPct, err = decimal.NewFromString(r.VariationPct); err != nil {
			return nil, fmt.Errorf("%s: variation_pct: %w", r.Symbol, err)
		}
		batch.Outcomes = append(batch.Outcomes, models.NewQuoteOutcome(q))
	}
	return batch, nil
}

// List returns the artifact file names in dir, newest first. A missing
// directory has no artifacts.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !IsArtifactName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// IsArtifactName reports whether name looks like a file Persist produced.
func IsArtifactName(name string) bool {
	if name != filepath.Base(name) || !strings.HasPrefix(name, "quotes_") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == "."+string(CSV) || ext == "."+string(JSON)
}
