package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/internal/journal"
	"github.com/timelock-wallet/tlw/internal/ledger"
	"github.com/timelock-wallet/tlw/internal/workspace"
	"github.com/timelock-wallet/tlw/pkg/config"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
	LockID      string `json:"lock_id,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == SeverityError || f.Severity == SeverityCritical {
		r.Healthy = false
	}
}

// Doctor performs workspace health checks. Ledger records are only read;
// anomalies are reported, never repaired.
type Doctor struct {
	root   string
	ledger ledger.Ledger
	clock  clock.PassiveClock
}

// NewDoctor creates a doctor for the workspace at root. l may be nil to skip
// the ledger checks.
func NewDoctor(root string, l ledger.Ledger, clk clock.PassiveClock) *Doctor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Doctor{root: root, ledger: l, clock: clk}
}

// Check runs all diagnostic checks. owner selects whose ledger records are
// inspected; empty skips them.
func (d *Doctor) Check(ctx context.Context, owner string) (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}

	d.checkFormatVersion(result)
	d.checkConfig(result)
	d.checkJournal(result)
	if d.ledger != nil && owner != "" {
		if err := d.checkLedger(ctx, owner, result); err != nil {
			return nil, err
		}
	}
	d.checkOrphanTmp(result)

	return result, nil
}

func (d *Doctor) stateDir() string {
	return filepath.Join(d.root, config.DirName)
}

func (d *Doctor) checkFormatVersion(result *Result) {
	versionPath := filepath.Join(d.stateDir(), workspace.FormatVersionFile)
	data, err := os.ReadFile(versionPath)
	if err != nil {
		result.add(Finding{
			Category:    "format",
			Description: "format_version file missing or unreadable",
			Severity:    SeverityCritical,
			Path:        versionPath,
		})
		return
	}

	var version int
	if _, err := fmt.Sscanf(string(data), "%d", &version); err != nil {
		result.add(Finding{
			Category:    "format",
			Description: fmt.Sprintf("format_version is not a number: %q", strings.TrimSpace(string(data))),
			Severity:    SeverityCritical,
			Path:        versionPath,
		})
		return
	}
	if version > workspace.FormatVersion {
		result.add(Finding{
			Category:    "format",
			Description: fmt.Sprintf("format version %d > supported %d", version, workspace.FormatVersion),
			Severity:    SeverityCritical,
			Path:        versionPath,
		})
	}
}

func (d *Doctor) checkConfig(result *Result) {
	if _, err := config.Load(d.root); err != nil {
		result.add(Finding{
			Category:    "config",
			Description: err.Error(),
			Severity:    SeverityError,
			Path:        config.Path(d.root),
		})
	}
}

func (d *Doctor) checkJournal(result *Result) {
	path := filepath.Join(d.stateDir(), workspace.JournalFile)
	if _, err := journal.Verify(path); err != nil {
		result.add(Finding{
			Category:    "journal",
			Description: err.Error(),
			Severity:    SeverityError,
			Path:        path,
		})
	}
}

func (d *Doctor) checkLedger(ctx context.Context, owner string, result *Result) error {
	recs, err := d.ledger.FetchLocks(ctx, owner)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result.add(Finding{
			Category:    "ledger",
			Description: fmt.Sprintf("cannot fetch locks: %v", err),
			Severity:    SeverityError,
		})
		return nil
	}

	now := d.clock.Now()
	for _, r := range recs {
		if r.Anomalous(now) {
			result.add(Finding{
				Category: "ledger",
				Description: fmt.Sprintf("lock %s is withdrawn but unlocks only at %s",
					r.ID, r.UnlockTime().Format(time.RFC3339)),
				Severity: SeverityWarning,
				LockID:   r.ID,
			})
		}
		if !r.Asset.Valid() {
			result.add(Finding{
				Category:    "ledger",
				Description: fmt.Sprintf("lock %s has unknown asset %q", r.ID, r.Asset),
				Severity:    SeverityWarning,
				LockID:      r.ID,
			})
		}
		if r.Amount.Sign() <= 0 {
			result.add(Finding{
				Category:    "ledger",
				Description: fmt.Sprintf("lock %s has non-positive amount %s", r.ID, r.Amount),
				Severity:    SeverityWarning,
				LockID:      r.ID,
			})
		}
	}
	return nil
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	entries, err := os.ReadDir(d.stateDir())
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tlw-tmp-") {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", e.Name()),
				Severity:    SeverityInfo,
				Path:        filepath.Join(d.stateDir(), e.Name()),
			})
		}
	}
}
