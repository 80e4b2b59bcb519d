package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/fxbridge/internal/devserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development formula-language service",
	Long: `Run a local formula-language service exposing the lsp and eval
endpoints. Formulas are evaluated as expr-lang expressions against the
record context.

Examples:
  # Serve on the configured address
  fxbridge serve

  # Serve on another port and point the editor at it
  fxbridge serve --addr 127.0.0.1:9000
  FXBRIDGE_SERVICE_URL=http://127.0.0.1:9000/ fxbridge edit`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := appCfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := devserver.New(devserver.WithLogger(logger), devserver.WithVersion(version))
	return srv.ListenAndServe(ctx, addr)
}
