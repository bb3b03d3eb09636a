package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/iho/gameledger/internal/domain"
)

// CSVExporter writes daily close reports as CSV files under dir.
type CSVExporter struct {
	dir string
}

// NewCSVExporter creates an exporter writing into dir.
func NewCSVExporter(dir string) *CSVExporter {
	return &CSVExporter{dir: dir}
}

// FileName is the report file name for date.
func FileName(date string) string {
	return "daily-close-" + date + ".csv"
}

// Export writes the report and returns its path. The file appears atomically:
// it is written to a temporary name and renamed into place.
func (e *CSVExporter) Export(ctx context.Context, report *domain.DailyCloseReport) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.dir, 0o750); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(e.dir, ".daily-close-*.csv")
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := writeReport(csv.NewWriter(tmp), report); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}

	path := filepath.Join(e.dir, FileName(report.Date))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish export file: %w", err)
	}
	return path, nil
}

func writeReport(w *csv.Writer, r *domain.DailyCloseReport) error {
	records := [][]string{
		{"Daily Close Report"},
		{"Date", r.Date},
		{"Generated At", r.GeneratedAt.UTC().Format(time.RFC3339)},
		{},
		{"Financial Summary"},
		{"Currency", "Deposits", "Withdrawals", "Bets", "Wins", "Bonuses", "GGR", "NGR"},
	}
	for _, s := range r.Summary {
		records = append(records, []string{
			s.Currency,
			s.Deposits.String(),
			s.Withdrawals.String(),
			s.Bets.String(),
			s.Wins.String(),
			s.Bonuses.String(),
			s.GGR.String(),
			s.NGR.String(),
		})
	}

	if in := r.Integrity; in != nil {
		records = append(records,
			[]string{},
			[]string{"Ledger Integrity"},
			[]string{"Valid", strconv.FormatBool(in.IsValid)},
			[]string{"Total Credits", in.TotalCredits.String()},
			[]string{"Total Debits", in.TotalDebits.String()},
			[]string{"Imbalance", in.Imbalance.String()},
			[]string{"Accounts Checked", strconv.Itoa(in.AccountsChecked)},
			[]string{"Checked At", in.CheckedAt.UTC().Format(time.RFC3339)},
		)

		if len(in.AccountImbalances) > 0 {
			records = append(records,
				[]string{},
				[]string{"Account Imbalances"},
				[]string{"Account ID", "User ID", "Currency", "Stored Balance", "Calculated Balance", "Imbalance"},
			)
			for _, a := range in.AccountImbalances {
				records = append(records, []string{
					a.AccountID,
					a.UserID,
					a.Currency,
					a.StoredBalance.String(),
					a.CalculatedBalance.String(),
					a.Imbalance.String(),
				})
			}
		}
	}

	if err := w.WriteAll(records); err != nil {
		return err
	}
	return w.Error()
}
