package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/gameledger/internal/adapter/repository/memory"
	redisRepo "github.com/iho/gameledger/internal/adapter/repository/redis"
	"github.com/iho/gameledger/internal/app"
	"github.com/iho/gameledger/internal/domain"
	"github.com/iho/gameledger/internal/infrastructure/config"
	"github.com/iho/gameledger/internal/usecase"
)

func newTestCLI(t *testing.T) (*cli, *app.Container) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		SupportedCurrencies: []string{"USD"},
		HouseUserID:         "house",
		LedgerTxTimeout:     time.Second,
		CloseExportDir:      t.TempDir(),
		CloseScheduleAt:     "00:30",
		CloseLockTTL:        time.Minute,
		JobAttempts:         3,
		JobBackoff:          time.Second,
		JobRetention:        time.Hour,
	}
	ct := app.Build(app.Options{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Registry: prometheus.NewRegistry(),
		Repos:    app.MemoryRepositories(memory.NewStore()),
		Locker:   memory.NewLocker(),
		Queue:    redisRepo.NewQueue(client, redisRepo.QueueConfig{}),
	})

	c := &cli{
		cfg: cfg,
		log: zerolog.Nop(),
		open: func(context.Context) (*app.Container, func() error, error) {
			return ct, func() error { return nil }, nil
		},
	}
	return c, ct
}

func execute(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	cmd := c.rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("expected short unchanged, got %q", got)
	}

	if got := truncate("longerstring", 6); got != "lon..." {
		t.Fatalf("expected lon..., got %q", got)
	}

	if got := truncate("abcdef", 2); got != "ab" {
		t.Fatalf("expected ab, got %q", got)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, struct {
		A int `json:"a"`
	}{A: 1}); err != nil {
		t.Fatalf("printJSON: %v", err)
	}

	expected := "{\n  \"a\": 1\n}\n"
	if buf.String() != expected {
		t.Fatalf("unexpected json output:\n%s", buf.String())
	}
}

func TestCloseRunGetAndList(t *testing.T) {
	c, _ := newTestCLI(t)

	out, err := execute(t, c, "close", "run", "2024-03-01")
	if err != nil {
		t.Fatalf("close run: %v", err)
	}
	var res usecase.DailyCloseResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode close run output: %v\n%s", err, out)
	}
	if res.Close == nil || res.Close.Status != domain.DailyCloseStatusCompleted {
		t.Fatalf("expected completed close, got %+v", res.Close)
	}

	if _, err := execute(t, c, "close", "run", "2024-03-01"); err == nil {
		t.Fatalf("expected second run without --force to fail")
	}

	out, err = execute(t, c, "close", "get", "2024-03-01")
	if err != nil {
		t.Fatalf("close get: %v", err)
	}
	if !strings.Contains(out, `"Status": "COMPLETED"`) {
		t.Fatalf("expected COMPLETED in output, got:\n%s", out)
	}

	out, err = execute(t, c, "close", "list", "--limit", "5")
	if err != nil {
		t.Fatalf("close list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "2024-03-01") {
		t.Fatalf("expected header and one row, got:\n%s", out)
	}
}

func TestCloseEnqueueAndJobStatus(t *testing.T) {
	c, _ := newTestCLI(t)

	out, err := execute(t, c, "close", "enqueue", "2024-03-01")
	if err != nil {
		t.Fatalf("close enqueue: %v", err)
	}
	if strings.TrimSpace(out) != "job daily-close:2024-03-01 waiting" {
		t.Fatalf("unexpected enqueue output %q", out)
	}

	out, err = execute(t, c, "jobs", "status", "daily-close:2024-03-01")
	if err != nil {
		t.Fatalf("jobs status: %v", err)
	}
	var job domain.Job
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.MaxAttempts != 3 || job.Type != domain.JobTypeDailyClose {
		t.Fatalf("unexpected job %+v", job)
	}

	if _, err := execute(t, c, "jobs", "status", "missing"); err == nil {
		t.Fatalf("expected missing job to fail")
	}
}

func TestLedgerBalanceAndVerify(t *testing.T) {
	c, ct := newTestCLI(t)

	_, err := ct.Ledger.ExecuteTransaction(context.Background(), usecase.ExecuteTransactionInput{
		UserID:   "player-1",
		Type:     domain.TransactionTypeDeposit,
		Currency: "USD",
		Amount:   decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	out, err := execute(t, c, "ledger", "balance", "player-1", "USD")
	if err != nil {
		t.Fatalf("ledger balance: %v", err)
	}
	var balance map[string]string
	if err := json.Unmarshal([]byte(out), &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance["available"] != "25" || balance["total"] != "25" {
		t.Fatalf("unexpected balance %v", balance)
	}

	if _, err := execute(t, c, "ledger", "verify-account", balance["account_id"]); err != nil {
		t.Fatalf("verify-account: %v", err)
	}

	out, err = execute(t, c, "ledger", "verify")
	if err != nil {
		t.Fatalf("ledger verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"is_valid": true`) {
		t.Fatalf("expected valid ledger, got:\n%s", out)
	}
}

func TestReconCommands(t *testing.T) {
	c, _ := newTestCLI(t)

	out, err := execute(t, c, "recon", "run", "2024-03-01")
	if err != nil {
		t.Fatalf("recon run: %v", err)
	}
	if !strings.Contains(out, `"processed_count": 0`) {
		t.Fatalf("expected empty reconciliation, got:\n%s", out)
	}

	out, err = execute(t, c, "recon", "list")
	if err != nil {
		t.Fatalf("recon list: %v", err)
	}
	if !strings.HasPrefix(out, "ID") {
		t.Fatalf("expected table header, got %q", out)
	}

	if _, err := execute(t, c, "recon", "resolve", "01HXYZ"); err == nil {
		t.Fatalf("expected resolve without --by to fail")
	}
}

func TestReconEnqueue(t *testing.T) {
	c, _ := newTestCLI(t)

	out, err := execute(t, c, "recon", "enqueue", "2024-03-01")
	if err != nil {
		t.Fatalf("recon enqueue: %v", err)
	}
	if strings.TrimSpace(out) != "job reconciliation:2024-03-01 waiting" {
		t.Fatalf("unexpected enqueue output %q", out)
	}

	out, err = execute(t, c, "recon", "enqueue", "2024-03-01")
	if err != nil {
		t.Fatalf("recon enqueue again: %v", err)
	}
	if !strings.HasPrefix(out, "job reconciliation:2024-03-01 ") {
		t.Fatalf("expected the queued job to be reused, got %q", out)
	}

	out, err = execute(t, c, "recon", "enqueue", "2024-03-01", "--force")
	if err != nil {
		t.Fatalf("recon enqueue --force: %v", err)
	}
	if !strings.HasPrefix(out, "job reconciliation:2024-03-01:force:") {
		t.Fatalf("expected a distinct forced job, got %q", out)
	}

	if _, err := execute(t, c, "recon", "enqueue", "03/01/2024"); err == nil {
		t.Fatalf("expected malformed date to fail")
	}
}

func TestLedgerExecuteLockAndUnlock(t *testing.T) {
	c, _ := newTestCLI(t)

	out, err := execute(t, c, "ledger", "execute", "player-1", "deposit", "usd", "25", "--ref", "dep-1")
	if err != nil {
		t.Fatalf("ledger execute: %v", err)
	}
	var res map[string]string
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode execute output: %v\n%s", err, out)
	}
	if res["type"] != "DEPOSIT" || res["balance_before"] != "0" || res["balance_after"] != "25" {
		t.Fatalf("unexpected execute result %v", res)
	}

	out, err = execute(t, c, "ledger", "lock", "player-1", "USD", "10")
	if err != nil {
		t.Fatalf("ledger lock: %v", err)
	}
	var acc map[string]string
	if err := json.Unmarshal([]byte(out), &acc); err != nil {
		t.Fatalf("decode lock output: %v", err)
	}
	if acc["available"] != "15" || acc["locked"] != "10" || acc["total"] != "25" {
		t.Fatalf("unexpected locked account %v", acc)
	}

	out, err = execute(t, c, "ledger", "unlock", "player-1", "USD", "10")
	if err != nil {
		t.Fatalf("ledger unlock: %v", err)
	}
	acc = nil
	if err := json.Unmarshal([]byte(out), &acc); err != nil {
		t.Fatalf("decode unlock output: %v", err)
	}
	if acc["available"] != "25" || acc["locked"] != "0" {
		t.Fatalf("unexpected unlocked account %v", acc)
	}

	for _, args := range [][]string{
		{"ledger", "execute", "player-1", "deposit", "USD", "abc"},
		{"ledger", "execute", "player-1", "refund", "USD", "5"},
		{"ledger", "execute", "player-1", "withdrawal", "USD", "100"},
		{"ledger", "lock", "player-1", "USD", "0.000000001"},
	} {
		if _, err := execute(t, c, args...); err == nil {
			t.Fatalf("expected %v to fail", args)
		}
	}
}
