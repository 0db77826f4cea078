package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"grandbridge/internal/store"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply pending database migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd)
		},
	}
}

func runMigrate(opts *RootOptions, cmd *cobra.Command) error {
	cfg, log, err := opts.load(false)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := store.Open(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	applied, err := st.Migrate(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(applied) == 0 {
		fmt.Fprintln(out, "database is up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintln(out, "applied", name)
	}
	return nil
}
