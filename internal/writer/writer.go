// Package writer persists a quote batch as a new, timestamped artifact.
package writer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/pretty"

	"quotescraper/internal/utils"
	"quotescraper/models"
)

type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Columns is the fixed artifact layout.
var Columns = []string{"symbol", "price", "variation", "variation_pct", "status", "timestamp"}

// ErrPersist is matched by every error Persist returns.
var ErrPersist = errors.New("failed to persist batch")

type PersistError struct {
	Path  string
	Op    string
	Cause error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist batch (%s %s): %v", e.Op, e.Path, e.Cause)
}

func (e *PersistError) Unwrap() error {
	return e.Cause
}

func (e *PersistError) Is(target error) bool {
	return target == ErrPersist
}

// Record is one artifact row. Failure rows carry the failure reason as
// status and empty numeric columns.
type Record struct {
	Symbol       string `json:"symbol"`
	Price        string `json:"price"`
	Variation    string `json:"variation"`
	VariationPct string `json:"variation_pct"`
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
}

func (r Record) row() []string {
	return []string{r.Symbol, r.Price, r.Variation, r.VariationPct, r.Status, r.Timestamp}
}

type Writer struct {
	dir             string
	format          Format
	includeFailures bool
	logger          *utils.Logger
}

func New(dir string, format Format, includeFailures bool, logger *utils.Logger) *Writer {
	return &Writer{dir: dir, format: format, includeFailures: includeFailures, logger: logger}
}

func (w *Writer) Dir() string {
	return w.dir
}

// Records converts batch into artifact rows in dispatch order.
func (w *Writer) Records(batch *models.Batch) []Record {
	records := make([]Record, 0, len(batch.Outcomes))
	for _, o := range batch.Outcomes {
		switch {
		case o.OK():
			q := o.Quote
			records = append(records, Record{
				Symbol:       q.Symbol,
				Price:        q.Price.String(),
				Variation:    q.Variation.String(),
				VariationPct: q.VariationPct.String(),
				Status:       string(q.Direction),
				Timestamp:    q.FetchedAt.Format(time.RFC3339),
			})
		case w.includeFailures && o.Failure != nil:
			records = append(records, Record{
				Symbol:    o.Symbol,
				Status:    string(o.Failure.Reason),
				Timestamp: batch.StartedAt.Format(time.RFC3339),
			})
		}
	}
	return records
}

// Persist writes batch to a new file and returns its path. An existing
// artifact is never overwritten, and a partially written file is removed.
func (w *Writer) Persist(batch *models.Batch) (string, error) {
	if batch == nil {
		batch = &models.Batch{StartedAt: time.Now()}
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", &PersistError{Path: w.dir, Op: "mkdir", Cause: err}
	}

	file, err := w.create(batch)
	if err != nil {
		return "", err
	}
	path := file.Name()

	records := w.Records(batch)
	if err := w.encode(file, records); err != nil {
		file.Close()
		os.Remove(path)
		return "", &PersistError{Path: path, Op: "write", Cause: err}
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", &PersistError{Path: path, Op: "close", Cause: err}
	}

	w.logger.Info("Successfully saved %d records to %s", len(records), path)
	return path, nil
}

// create opens a fresh artifact with O_EXCL, adding a counter on a name clash.
func (w *Writer) create(batch *models.Batch) (*os.File, error) {
	runID := batch.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	short := strings.ReplaceAll(runID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	base := fmt.Sprintf("quotes_%s_%s", batch.StartedAt.Format("2006-01-02_15-04-05"), short)

	for i := 0; i < 100; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		path := filepath.Join(w.dir, name+"."+string(w.format))
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, &PersistError{Path: path, Op: "create", Cause: err}
		}
		return file, nil
	}
	return nil, &PersistError{Path: filepath.Join(w.dir, base), Op: "create", Cause: os.ErrExist}
}

func (w *Writer) encode(out io.Writer, records []Record) error {
	switch w.format {
	case JSON:
		data, err := json.Marshal(records)
		if err != nil {
			return err
		}
		_, err = out.Write(pretty.Pretty(data))
		return err
	case CSV:
		writer := csv.NewWriter(out)
		if err := writer.Write(Columns); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
		for _, r := range records {
			if err := writer.Write(r.row()); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
		writer.Flush()
		return writer.Error()
	default:
		return fmt.Errorf("unknown output format %q", w.format)
	}
}
