package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"grandbridge/internal/seed"
	"grandbridge/internal/store"
)

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load support staff and food pickup points",
		Long: `Load support staff and food pickup points from a YAML file.

Staff whose email is already on file are skipped, as are locations within
50 metres of an existing one.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := seed.Parse(f)
	if err != nil {
		return err
	}

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

	res, err := seed.Apply(cmd.Context(), st, data)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "staff: %d added, %d skipped\n", res.StaffAdded, res.StaffSkipped)
	fmt.Fprintf(out, "locations: %d added, %d skipped\n", res.Locations.Added, res.Locations.Skipped)
	for _, e := range res.Locations.Errors {
		fmt.Fprintln(out, "  ", e)
	}
	return nil
}
