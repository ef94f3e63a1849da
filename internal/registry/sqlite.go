package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"quotescraper/models"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSource reads tickers from an existing table; it never creates or
// migrates schema.
type SQLiteSource struct {
	Path         string
	Table        string
	SymbolColumn string
	NameColumn   string
}

func (s SQLiteSource) String() string {
	return fmt.Sprintf("%s:%s", s.Path, s.Table)
}

func (s SQLiteSource) Tickers(ctx context.Context) ([]models.Ticker, error) {
	for _, id := range []string{s.Table, s.SymbolColumn, s.NameColumn} {
		if !identifier.MatchString(id) {
			return nil, &UnavailableError{Source: s.String(), Cause: fmt.Errorf("invalid identifier %q", id)}
		}
	}
	// sql.Open would silently create an empty database file.
	if _, err := os.Stat(s.Path); err != nil {
		return nil, &UnavailableError{Source: s.String(), Cause: err}
	}

	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return nil, &UnavailableError{Source: s.String(), Cause: err}
	}
	defer db.Close()

	query := fmt.Sprintf("SELECT %s, %s FROM %s", s.SymbolColumn, s.NameColumn, s.Table)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, &UnavailableError{Source: s.String(), Cause: err}
	}
	defer rows.Close()

	var tickers []models.Ticker
	seen := make(map[string]struct{})
	for rows.Next() {
		var symbol, name sql.NullString
		if err := rows.Scan(&symbol, &name); err != nil {
			return nil, &UnavailableError{Source: s.String(), Cause: err}
		}
		t := models.Ticker{Symbol: models.CanonicalSymbol(symbol.String), Name: strings.TrimSpace(name.String)}
		if t.Symbol == "" {
			continue
		}
		if _, dup := seen[t.Symbol]; dup {
			continue
		}
		seen[t.Symbol] = struct{}{}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Source: s.String(), Cause: err}
	}
	return tickers, nil
}
