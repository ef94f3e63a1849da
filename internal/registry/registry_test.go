package registry

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotescraper/internal/blacklist"
	"quotescraper/internal/utils"
	"quotescraper/models"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func symbols(tickers []models.Ticker) []string {
	out := make([]string, len(tickers))
	for i, t := range tickers {
		out[i] = t.Symbol
	}
	return out
}

func TestLoad_ExcludesBlacklisted(t *testing.T) {
	dir := t.TempDir()
	tickers := writeFile(t, dir, "ativos.csv", "id,Nome\nAAA3,Alpha SA\nBBB4,Beta SA\n")
	banned := writeFile(t, dir, "lista-negra.csv", "BBB4\n")

	reg := New(CSVSource{Path: tickers}, blacklist.NewFileStore(banned), utils.NewNopLogger())
	u, err := reg.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.Ticker{{Symbol: "AAA3", Name: "Alpha SA"}}, u.Tickers)
	assert.Equal(t, 1, u.Excluded)
	assert.Contains(t, u.Blacklist, "BBB4")
}

func TestLoad_NoBlacklistedTickerSurvives(t *testing.T) {
	dir := t.TempDir()
	var csvBody strings.Builder
	csvBody.WriteString("ticker,name\n")
	var banned strings.Builder
	all := []string{"ITUB4", "VALE3", "PETR4", "WEGE3", "BBAS3", "MGLU3", "BBDC4", "ABEV3", "PRIO3"}
	for i, s := range all {
		csvBody.WriteString(s + ",x\n")
		if i%2 == 0 {
			banned.WriteString(s + "\n")
		}
	}
	tickers := writeFile(t, dir, "ativos.csv", csvBody.String())
	bl := writeFile(t, dir, "lista-negra.csv", banned.String())

	reg := New(CSVSource{Path: tickers}, blacklist.NewFileStore(bl), utils.NewNopLogger())
	u, err := reg.Load(context.Background())
	require.NoError(t, err)

	for _, tk := range u.Tickers {
		_, isBanned := u.Blacklist[tk.Symbol]
		assert.False(t, isBanned, "%s is blacklisted but was returned", tk.Symbol)
	}
	assert.Equal(t, []string{"VALE3", "WEGE3", "MGLU3", "ABEV3"}, symbols(u.Tickers))
}

func TestLoad_MissingBlacklistIsEmpty(t *testing.T) {
	dir := t.TempDir()
	tickers := writeFile(t, dir, "ativos.csv", "id\nAAA3\n")

	reg := New(CSVSource{Path: tickers}, blacklist.NewFileStore(filepath.Join(dir, "missing.csv")), utils.NewNopLogger())
	u, err := reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA3"}, symbols(u.Tickers))
	assert.Empty(t, u.Blacklist)
}

func TestLoad_UnreadableBlacklistDegrades(t *testing.T) {
	dir := t.TempDir()
	tickers := writeFile(t, dir, "ativos.csv", "id\nAAA3\n")

	// a directory is not a readable blacklist
	reg := New(CSVSource{Path: tickers}, blacklist.NewFileStore(dir), utils.NewNopLogger())
	u, err := reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA3"}, symbols(u.Tickers))
}

func TestLoad_MissingTickerSource(t *testing.T) {
	reg := New(CSVSource{Path: filepath.Join(t.TempDir(), "none.csv")}, nil, utils.NewNopLogger())

	_, err := reg.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadTickers(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []models.Ticker
		wantErr bool
	}{
		{
			name: "original layout",
			body: "id,Nome\nPETR4,Petrobras\nVALE3,Vale\n",
			want: []models.Ticker{{Symbol: "PETR4", Name: "Petrobras"}, {Symbol: "VALE3", Name: "Vale"}},
		},
		{
			name: "symbol column not first, duplicates and blanks",
			body: "name,symbol\nItau,itub4\n,\nItau again,ITUB4\n",
			want: []models.Ticker{{Symbol: "ITUB4", Name: "Itau"}},
		},
		{
			name: "no name column",
			body: "ticker\nWEGE3\n",
			want: []models.Ticker{{Symbol: "WEGE3"}},
		},
		{
			name:    "no symbol column",
			body:    "nome,preco\nPetro,1\n",
			wantErr: true,
		},
		{
			name:    "empty",
			body:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadTickers(strings.NewReader(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLiteSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Investimento.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE ativos (id INTEGER PRIMARY KEY AUTOINCREMENT, ticker TEXT UNIQUE, nome TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO ativos (ticker, nome) VALUES ('PETR4', 'Petrobras'), ('vale3', 'Vale'), ('', 'blank')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	src := SQLiteSource{Path: path, Table: "ativos", SymbolColumn: "ticker", NameColumn: "nome"}
	got, err := src.Tickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Ticker{{Symbol: "PETR4", Name: "Petrobras"}, {Symbol: "VALE3", Name: "Vale"}}, got)
}

func TestSQLiteSource_Unavailable(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		src := SQLiteSource{Path: filepath.Join(dir, "none.db"), Table: "ativos", SymbolColumn: "ticker", NameColumn: "nome"}
		_, err := src.Tickers(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
		_, statErr := os.Stat(filepath.Join(dir, "none.db"))
		assert.True(t, os.IsNotExist(statErr), "database must not be created")
	})

	t.Run("bad identifier", func(t *testing.T) {
		src := SQLiteSource{Path: filepath.Join(dir, "x.db"), Table: "ativos; DROP TABLE x", SymbolColumn: "ticker", NameColumn: "nome"}
		_, err := src.Tickers(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{{Symbol: " petr4"}, {Symbol: "PETR4"}, {Symbol: ""}, {Symbol: "vale3", Name: "Vale"}}
	got, err := src.Tickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Ticker{{Symbol: "PETR4"}, {Symbol: "VALE3", Name: "Vale"}}, got)
}
