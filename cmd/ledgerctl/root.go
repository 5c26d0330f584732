package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/ledger"
	"github.com/tjfontaine/promptlink-gateway/internal/pkg/config"
	"github.com/tjfontaine/promptlink-gateway/internal/storage/sqldb"
)

type app struct {
	store  *sqldb.Store
	ledger *ledger.Ledger
}

type dbFlags struct {
	config string
	driver string
	dsn    string
}

// open loads config and connects to the database it names. The driver and
// dsn flags override the config file.
func (a *app) open(f dbFlags) error {
	cfg, err := config.LoadFile(f.config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db := sqldb.Config{Driver: cfg.Storage.Database.Driver, DSN: cfg.Storage.Database.DSN}
	if f.driver != "" {
		db.Driver = f.driver
	}
	if f.dsn != "" {
		db.DSN = f.dsn
	}

	a.store, err = sqldb.New(db)
	if err != nil {
		return err
	}

	plans := make([]domain.Plan, 0, len(cfg.Ledger.Plans))
	for _, p := range cfg.Ledger.Plans {
		plans = append(plans, domain.Plan{
			ID:             p.ID,
			Name:           p.Name,
			Price:          p.Price,
			Currency:       p.Currency,
			Credits:        p.Credits,
			DailyLimit:     p.DailyLimit,
			HumanSimulator: p.HumanSimulator,
			MaxRounds:      p.MaxRounds,
		})
	}

	a.ledger, err = ledger.New(a.store, plans, cfg.Ledger.DefaultPlan,
		ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		a.store.Close()
		return err
	}
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var flags dbFlags

	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect and adjust PromptLink credit balances",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.open(flags)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.config, "config", config.DefaultPath, "gateway config file")
	rootCmd.PersistentFlags().StringVar(&flags.driver, "driver", "", "database driver (sqlite, postgres); overrides config")
	rootCmd.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "database DSN; overrides config")

	rootCmd.AddCommand(
		newBalanceCmd(a),
		newConsumeCmd(a),
		newTopUpCmd(a),
		newAccountsCmd(a),
		newPlansCmd(a),
	)

	return rootCmd
}
