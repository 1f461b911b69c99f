package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/timelock-wallet/tlw/internal/countdown"
	"github.com/timelock-wallet/tlw/internal/journal"
	"github.com/timelock-wallet/tlw/internal/ledger"
	"github.com/timelock-wallet/tlw/internal/notify"
	"github.com/timelock-wallet/tlw/internal/workspace"
	"github.com/timelock-wallet/tlw/pkg/config"
	"github.com/timelock-wallet/tlw/pkg/logging"
	"github.com/timelock-wallet/tlw/pkg/metrics"
	"github.com/timelock-wallet/tlw/pkg/timelock"
	"github.com/timelock-wallet/tlw/pkg/webhook"
)

// requireWorkspace discovers the workspace from CWD.
func requireWorkspace() (*workspace.Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cannot get current directory: %w", err)
	}
	w, err := workspace.Discover(cwd)
	if err != nil {
		if strings.HasPrefix(err.Error(), "no tlw workspace") {
			return nil, errNotInWorkspace()
		}
		return nil, err
	}
	return w, nil
}

// env is everything a command needs to talk to the ledger for one owner.
type env struct {
	ws      *workspace.Workspace
	cfg     *config.Config
	log     *logging.Logger
	ledger  ledger.Ledger
	journal *journal.Journal
	hooks   *webhook.Client
	metrics *metrics.Registry
	client  *timelock.Client
}

type envOptions struct {
	onTick func(countdown.Result)
}

// openEnv loads the workspace config and builds the client. Notifications go
// to the log, the journal, the metrics and any configured webhooks.
func openEnv(ctx context.Context, opts envOptions) (*env, error) {
	ws, err := requireWorkspace()
	if err != nil {
		return nil, err
	}
	cfg, err := ws.LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logging.SetGlobal(log)

	l, err := ledger.Open(ctx, cfg, ws.Root, nil)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	e := &env{
		ws:      ws,
		cfg:     cfg,
		log:     log,
		ledger:  l,
		journal: journal.New(ws.JournalPath(), log),
		hooks:   webhook.NewClient(webhook.FromConfig(cfg.Webhooks), log),
		metrics: metrics.Default(),
	}

	copts, err := timelock.OptionsFromConfig(cfg, l)
	if err != nil {
		e.Close()
		return nil, err
	}
	copts.Log = log
	copts.Metrics = e.metrics
	copts.OnTick = opts.onTick
	copts.Sinks = []notify.Sink{notify.NewLogSink(log), e.journal, e.hooks}

	e.client, err = timelock.New(copts)
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// owner resolves the identity from --owner or the config.
func (e *env) owner() (string, error) {
	o := ownerFlag
	if o == "" {
		o = e.cfg.Owner
	}
	if strings.TrimSpace(o) == "" {
		return "", errNoOwner()
	}
	return o, nil
}

// connect opens the owner's session and loads its locks.
func (e *env) connect(ctx context.Context) error {
	owner, err := e.owner()
	if err != nil {
		return err
	}
	_, err = e.client.Connect(ctx, owner)
	return err
}

// Close tears the session down, then flushes webhooks and closes the ledger.
func (e *env) Close() {
	if e.client != nil {
		_ = e.client.Close()
	}
	if e.hooks != nil {
		_ = e.hooks.Close()
	}
	if e.ledger != nil {
		if err := e.ledger.Close(); err != nil {
			e.log.ErrorErr("close ledger", err)
		}
	}
	_ = e.log.Close()
}
