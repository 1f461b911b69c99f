package doctor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/timelock-wallet/tlw/internal/doctor"
	"github.com/timelock-wallet/tlw/internal/journal"
	"github.com/timelock-wallet/tlw/internal/ledger/ledgertest"
	"github.com/timelock-wallet/tlw/internal/workspace"
	"github.com/timelock-wallet/tlw/pkg/model"
)

var epoch = time.Unix(1_700_000_000, 0)

func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := workspace.Init(dir)
	require.NoError(t, err)
	return dir
}

func TestDoctor_Check_Healthy(t *testing.T) {
	root := setupWorkspace(t)

	result, err := doctor.NewDoctor(root, nil, nil).Check(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.Empty(t, result.Findings)
}

func TestDoctor_Check_FormatVersion(t *testing.T) {
	tests := []struct {
		name    string
		content string
		remove  bool
	}{
		{name: "missing", remove: true},
		{name: "garbled", content: "x\n"},
		{name: "newer", content: "7\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := setupWorkspace(t)
			path := filepath.Join(root, ".tlw", "format_version")
			if tt.remove {
				require.NoError(t, os.Remove(path))
			} else {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			}

			result, err := doctor.NewDoctor(root, nil, nil).Check(context.Background(), "")
			require.NoError(t, err)
			assert.False(t, result.Healthy)
			require.Len(t, result.Findings, 1)
			assert.Equal(t, "format", result.Findings[0].Category)
			assert.Equal(t, doctor.SeverityCritical, result.Findings[0].Severity)
		})
	}
}

func TestDoctor_Check_InvalidConfig(t *testing.T) {
	root := setupWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".tlw", "config.yaml"), []byte("scheduler:\n  tick_interval: soon\n"), 0600))

	result, err := doctor.NewDoctor(root, nil, nil).Check(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "config", result.Findings[0].Category)
}

func TestDoctor_Check_BrokenJournal(t *testing.T) {
	root := setupWorkspace(t)
	w, err := workspace.Discover(root)
	require.NoError(t, err)

	j := journal.New(w.JournalPath(), nil)
	_, err = j.Append(model.Notification{Kind: model.NotificationSuccess, Title: "a"})
	require.NoError(t, err)
	f, err := os.OpenFile(w.JournalPath(), os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	result, err := doctor.NewDoctor(root, nil, nil).Check(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "journal", result.Findings[0].Category)
}

func TestDoctor_Check_LedgerAnomalies(t *testing.T) {
	root := setupWorkspace(t)
	clk := testclock.NewFakeClock(epoch)
	l := ledgertest.New(clk)
	l.Seed(
		model.LockRecord{ID: "ok", Owner: "alice", Amount: decimal.NewFromInt(1), Asset: model.AssetNative, UnlockTimestamp: epoch.Unix() + 60},
		model.LockRecord{ID: "early", Owner: "alice", Amount: decimal.NewFromInt(1), Asset: model.AssetNative, UnlockTimestamp: epoch.Unix() + 60, IsWithdrawn: true},
	)

	result, err := doctor.NewDoctor(root, l, clk).Check(context.Background(), "alice")
	require.NoError(t, err)
	// Anomalies are warnings; nothing is repaired.
	assert.True(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "ledger", result.Findings[0].Category)
	assert.Equal(t, "early", result.Findings[0].LockID)
	assert.Equal(t, doctor.SeverityWarning, result.Findings[0].Severity)

	recs, err := l.FetchLocks(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, recs[1].IsWithdrawn)
}

func TestDoctor_Check_LedgerUnreachable(t *testing.T) {
	root := setupWorkspace(t)
	l := ledgertest.New(testclock.NewFakeClock(epoch))
	l.FailWith(ledgertest.OpFetch, errors.New("connection refused"))

	result, err := doctor.NewDoctor(root, l, nil).Check(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Contains(t, result.Findings[0].Description, "connection refused")
}

func TestDoctor_Check_OrphanTmp(t *testing.T) {
	root := setupWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".tlw", ".tlw-tmp-123"), []byte("x"), 0600))

	result, err := doctor.NewDoctor(root, nil, nil).Check(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "tmp", result.Findings[0].Category)
	assert.Equal(t, doctor.SeverityInfo, result.Findings[0].Severity)
}
