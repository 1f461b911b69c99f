package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelock-wallet/tlw/internal/journal"
	"github.com/timelock-wallet/tlw/internal/ledger"
	"github.com/timelock-wallet/tlw/pkg/color"
	"github.com/timelock-wallet/tlw/pkg/config"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/model"
)

func executeCommand(args ...string) (stdout string, err error) {
	resetFlags()

	// Capture os.Stdout since commands print with fmt directly
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs(args)
	err = rootCmd.ExecuteContext(context.Background())

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), err
}

func resetFlags() {
	jsonOutput = false
	ownerFlag = ""
	lockAmount, lockAsset, lockDuration, lockUnit = "", "sol", "", "days"
	watchMetricsAddr, watchFor = "", 0
	doctorOffline = false
	journalLimit = 20
	color.Disable()
}

func setupTestDir(t *testing.T) string {
	dir := t.TempDir()
	originalWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(originalWd)
	})
	return dir
}

// setupWorkspace initializes a workspace owned by alice in a temp dir.
func setupWorkspace(t *testing.T) string {
	dir := setupTestDir(t)
	_, err := executeCommand("init", "--owner", "alice")
	require.NoError(t, err)
	return dir
}

func TestRootCommand_Help(t *testing.T) {
	stdout, err := executeCommand("--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "time-locked wallet")
}

func TestInitCommand_CreatesWorkspace(t *testing.T) {
	dir := setupTestDir(t)

	stdout, err := executeCommand("init", "--owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Initialized tlw workspace")

	assert.DirExists(t, filepath.Join(dir, ".tlw"))
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Owner)

	_, err = executeCommand("init")
	assert.Error(t, err)
}

func TestInitCommand_JSON(t *testing.T) {
	dir := setupTestDir(t)

	stdout, err := executeCommand("--json", "init", "sub")
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, filepath.Join(dir, "sub"), out["root"])
	assert.EqualValues(t, 1, out["format_version"])
}

func TestConfigCommand_SetGet(t *testing.T) {
	setupWorkspace(t)

	_, err := executeCommand("config", "set", "policy.minimums.native", "0.01")
	require.NoError(t, err)
	stdout, err := executeCommand("config", "get", "policy.minimums.native")
	require.NoError(t, err)
	assert.Equal(t, "0.01\n", stdout)

	_, err = executeCommand("config", "set", "scheduler.tick_interval", "often")
	assert.ErrorIs(t, err, errclass.ErrConfigInvalid)
	_, err = executeCommand("config", "get", "nope")
	assert.ErrorIs(t, err, errclass.ErrConfigInvalid)

	stdout, err = executeCommand("config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "owner: alice")
}

func TestLockCommand_CreateAndList(t *testing.T) {
	setupWorkspace(t)

	stdout, err := executeCommand("lock", "create", "--amount", "0.5", "--asset", "sol", "--duration", "1", "--unit", "day")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Created lock")

	stdout, err = executeCommand("--json", "lock", "list")
	require.NoError(t, err)
	var views []lockView
	require.NoError(t, json.Unmarshal([]byte(stdout), &views))
	require.Len(t, views, 1)
	assert.Equal(t, model.LockStatusLocked, views[0].Status)
	assert.True(t, views[0].Amount.Equal(decimal.RequireFromString("0.5")))
	assert.InDelta(t, 86400, views[0].RemainingSeconds, 5)

	stdout, err = executeCommand("lock", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0.5 SOL")
	assert.Contains(t, stdout, "locked")
}

func TestLockCommand_BelowMinimum(t *testing.T) {
	dir := setupWorkspace(t)

	_, err := executeCommand("lock", "create", "--amount", "0.0001", "--duration", "1")
	require.ErrorIs(t, err, errclass.ErrInvalidInput)
	assert.Equal(t, 2, exitCode(err))

	stdout, err := executeCommand("--json", "lock", "list")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", stdout)

	recs, err := journal.New(filepath.Join(dir, ".tlw", "journal.jsonl"), nil).Records()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.NotificationFailure, recs[0].Notification.Kind)
}

func TestLockCommand_WithdrawRules(t *testing.T) {
	dir := setupWorkspace(t)

	// One lock already unlocked, one still locked.
	fl := ledger.NewFile(filepath.Join(dir, ".tlw", "ledger.json"), nil)
	ctx := context.Background()
	ready, err := fl.CreateLock(ctx, ledger.CreateRequest{
		Owner: "alice", Amount: decimal.NewFromInt(3), Asset: model.AssetToken,
		UnlockTimestamp: time.Now().Add(-time.Minute).Unix(),
	})
	require.NoError(t, err)
	locked, err := fl.CreateLock(ctx, ledger.CreateRequest{
		Owner: "alice", Amount: decimal.NewFromInt(1), Asset: model.AssetNative,
		UnlockTimestamp: time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	_, err = executeCommand("lock", "withdraw", locked.LockID)
	require.ErrorIs(t, err, errclass.ErrNotWithdrawable)

	_, err = executeCommand("lock", "withdraw", "lock_nope")
	require.ErrorIs(t, err, errclass.ErrNotWithdrawable)
	assert.Contains(t, err.Error(), "tlw lock list")

	stdout, err := executeCommand("lock", "withdraw", ready.LockID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Withdrew lock")

	recs, err := fl.FetchLocks(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].IsWithdrawn)
	assert.False(t, recs[1].IsWithdrawn)

	_, err = executeCommand("lock", "withdraw", ready.LockID)
	assert.ErrorIs(t, err, errclass.ErrNotWithdrawable)
}

func TestLockCommand_NoOwner(t *testing.T) {
	setupTestDir(t)
	_, err := executeCommand("init")
	require.NoError(t, err)

	_, err = executeCommand("lock", "list")
	require.ErrorIs(t, err, errclass.ErrNotConnected)
	assert.Contains(t, err.Error(), "--owner")

	_, err = executeCommand("--owner", "bob", "lock", "list")
	assert.NoError(t, err)
}

func TestCommands_OutsideWorkspace(t *testing.T) {
	setupTestDir(t)

	for _, args := range [][]string{{"lock", "list"}, {"doctor"}, {"journal", "verify"}, {"config", "show"}} {
		_, err := executeCommand(args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "not a tlw workspace")
	}
}

func TestRefreshCommand(t *testing.T) {
	setupWorkspace(t)
	_, err := executeCommand("lock", "create", "--amount", "2", "--asset", "usdc", "--duration", "3", "--unit", "hours")
	require.NoError(t, err)

	stdout, err := executeCommand("refresh")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Fetched 1 locks (1 locked, 0 unlocked, 0 withdrawn)")
}

func TestDoctorCommand(t *testing.T) {
	setupWorkspace(t)

	stdout, err := executeCommand("doctor")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Workspace is healthy.")

	require.NoError(t, os.WriteFile(filepath.Join(".tlw", "format_version"), []byte("5\n"), 0644))
	_, err = executeCommand("doctor", "--offline")
	assert.Error(t, err)
}

func TestJournalCommands(t *testing.T) {
	setupWorkspace(t)
	_, err := executeCommand("lock", "create", "--amount", "1", "--duration", "2", "--unit", "weeks")
	require.NoError(t, err)

	stdout, err := executeCommand("journal", "verify")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Journal chain intact")

	stdout, err = executeCommand("journal", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "SOL timelock created")
}

func TestWatchCommand_StopsAfterDuration(t *testing.T) {
	setupWorkspace(t)

	start := time.Now()
	stdout, err := executeCommand("watch", "--for", "50ms")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No locks.")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLedgerMigrate_RequiresPostgres(t *testing.T) {
	setupWorkspace(t)

	_, err := executeCommand("ledger", "migrate")
	assert.ErrorIs(t, err, errclass.ErrConfigInvalid)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(errclass.ErrNotWithdrawable.WithMessage("x")))
	assert.Equal(t, 2, exitCode(errclass.ErrNotConnected))
	assert.Equal(t, 1, exitCode(errclass.ErrLedger.WithMessage("x")))
	assert.Equal(t, 1, exitCode(os.ErrNotExist))
}
