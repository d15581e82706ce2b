package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

type runtimeFlags struct {
	Verbose bool
	Inspect bool
}

var flags runtimeFlags

var rootCmd = &cobra.Command{
	Use:   "cmip6-download",
	Short: "Download monthly CMIP6 projections from the Copernicus Climate Data Store",
	Long: `cmip6-download requests every model/scenario/variable combination of its
catalog from the Copernicus Climate Data Store, one at a time, and keeps only
the NetCDF file of each result under data/<model>/<scenario>/.

A combination that fails is appended to error.log and the batch moves on.

Examples:
	# Run the whole batch
	cmip6-download

	# Show what would be requested, without touching the network
	cmip6-download plan

	# Restrict the batch to one model and scenario
	CMIP6_MODELS=cesm2 CMIP6_SCENARIOS=historical cmip6-download

Credentials:
	CDSAPI_URL and CDSAPI_KEY, or the url/key lines of ~/.cdsapirc.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flags.Verbose, "verbose", false, "Enable debug logging (every API call and poll)")
	rootCmd.Flags().BoolVar(&flags.Inspect, "inspect", false, "Log a NetCDF summary of every extracted file")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// Execute runs the root command until it finishes or the process is
// interrupted; an interrupt stops the batch between two combinations.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
