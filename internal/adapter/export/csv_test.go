package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/gameledger/internal/domain"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	return records
}

func report(integrity *domain.IntegrityResult) *domain.DailyCloseReport {
	d := decimal.RequireFromString
	return &domain.DailyCloseReport{
		Date:        "2024-03-01",
		GeneratedAt: time.Date(2024, 3, 2, 0, 30, 0, 0, time.UTC),
		Summary: []domain.CurrencySummary{
			domain.NewCurrencySummary("USD", d("1200"), d("0"), d("180"), d("150"), d("10")),
		},
		Integrity: integrity,
	}
}

func TestCSVExporter_WritesReport(t *testing.T) {
	dir := t.TempDir()
	exp := NewCSVExporter(filepath.Join(dir, "nested"))

	path, err := exp.Export(context.Background(), report(&domain.IntegrityResult{
		IsValid:         true,
		TotalCredits:    decimal.NewFromInt(155),
		TotalDebits:     decimal.NewFromInt(155),
		AccountsChecked: 3,
	}))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "daily-close-2024-03-01.csv"), path)

	records := readCSV(t, path)
	assert.Equal(t, []string{"Date", "2024-03-01"}, records[1])
	assert.Equal(t, []string{"Generated At", "2024-03-02T00:30:00Z"}, records[2])
	assert.Equal(t, []string{"USD", "1200", "0", "180", "150", "10", "30", "20"}, records[5])

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Valid,true")
	assert.NotContains(t, string(body), "Account Imbalances")
}

func TestCSVExporter_IncludesImbalances(t *testing.T) {
	exp := NewCSVExporter(t.TempDir())

	path, err := exp.Export(context.Background(), report(&domain.IntegrityResult{
		IsValid: false,
		AccountImbalances: []domain.AccountImbalance{{
			AccountID:         "a2",
			UserID:            "u2",
			Currency:          "USD",
			StoredBalance:     decimal.RequireFromString("24.5"),
			CalculatedBalance: decimal.NewFromInt(25),
			Imbalance:         decimal.RequireFromString("-0.5"),
		}},
	}))
	require.NoError(t, err)

	records := readCSV(t, path)
	last := records[len(records)-1]
	assert.Equal(t, []string{"a2", "u2", "USD", "24.5", "25", "-0.5"}, last)
}

func TestCSVExporter_OverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	exp := NewCSVExporter(dir)

	_, err := exp.Export(context.Background(), report(nil))
	require.NoError(t, err)
	_, err = exp.Export(context.Background(), report(nil))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), "."))
}

func TestCSVExporter_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSVExporter(t.TempDir()).Export(ctx, report(nil))
	assert.ErrorIs(t, err, context.Canceled)
}
