package ledger

import (
	"context"
	"path/filepath"

	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/pkg/config"
	"github.com/timelock-wallet/tlw/pkg/errclass"
)

// FileName is the file driver's document inside the workspace state dir.
const FileName = "ledger.json"

// Open returns the ledger selected by cfg.Ledger.Driver. root is the
// workspace root used by the file driver.
func Open(ctx context.Context, cfg *config.Config, root string, clk clock.PassiveClock) (Ledger, error) {
	switch cfg.Ledger.Driver {
	case config.DriverMemory:
		return NewMemory(clk), nil
	case config.DriverFile, "":
		return NewFile(filepath.Join(root, config.DirName, FileName), clk), nil
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg.Ledger.DSN, clk)
	}
	return nil, errclass.ErrConfigInvalid.WithMessagef("unknown ledger.driver %q", cfg.Ledger.Driver)
}
