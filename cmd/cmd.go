package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/makodevai/gpuq"
	"github.com/makodevai/gpuq/envconfig"
	"github.com/makodevai/gpuq/logutil"
	"github.com/makodevai/gpuq/server"
	"github.com/makodevai/gpuq/version"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func NewCLI() *cobra.Command {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "gpuq",
		Short:         "GPU device query tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Println(version.Version)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	queryCmd := newQueryCmd()
	countCmd := newCountCmd()
	getCmd := newGetCmd()
	providersCmd := newProvidersCmd()
	serveCmd := newServeCmd()

	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["GPUQ_DEBUG"]}
	for _, cmd := range []*cobra.Command{queryCmd, countCmd, getCmd} {
		appendEnvDocs(cmd, append(envs,
			envVars["CUDA_VISIBLE_DEVICES"],
			envVars["HIP_VISIBLE_DEVICES"],
			envVars["GPUQ_SMI_TIMEOUT"],
		))
	}
	appendEnvDocs(serveCmd, append(envs,
		envVars["GPUQ_HOST"],
		envVars["GPUQ_ORIGINS"],
	))

	rootCmd.AddCommand(
		queryCmd,
		countCmd,
		getCmd,
		providersCmd,
		serveCmd,
	)

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the gpuq API server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}

func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// queryFlags are the selection flags shared by query, count and get.
func queryFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("provider", "p", "", "Restrict to a provider (cuda, hip, all)")
	cmd.Flags().String("required", "", "Fail unless these providers have devices")
	cmd.Flags().Bool("require-devices", false, "Fail unless at least one device matches")
	cmd.Flags().Bool("all", false, "Include devices hidden by *_VISIBLE_DEVICES")
}

func parseQueryFlags(cmd *cobra.Command) ([]gpuq.QueryOption, error) {
	var opts []gpuq.QueryOption

	if raw, _ := cmd.Flags().GetString("provider"); raw != "" {
		p, err := gpuq.ParseProvider(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gpuq.WithProvider(p))
	}
	if raw, _ := cmd.Flags().GetString("required"); raw != "" {
		p, err := gpuq.ParseProvider(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gpuq.WithRequired(p))
	}
	if req, _ := cmd.Flags().GetBool("require-devices"); req {
		opts = append(opts, gpuq.RequireDevices())
	}
	if all, _ := cmd.Flags().GetBool("all"); all {
		opts = append(opts, gpuq.WithVisibleOnly(false))
	}

	return opts, nil
}
