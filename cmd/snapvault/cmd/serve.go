package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/snapvault/internal/api"
	"github.com/wesm/snapvault/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve [mydata.zip]",
	Short: "Serve the local JSON API",
	Long: `Run the local HTTP API used by a viewer shell. When an archive is given it is
imported before the server starts; otherwise import one with
POST /api/v1/import {"path": "..."}.

The server binds to [server] bind_addr (default 127.0.0.1) and api_port
(default 8080). Binding beyond loopback requires [server] api_key.

Use Ctrl+C to stop the server gracefully.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	var sess *session.Session
	if len(args) == 1 {
		s, _, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		sess = s
	} else {
		opts, err := session.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		sess = session.New(opts, logger)
	}
	defer sess.Close()

	ctx := cmd.Context()
	apiServer := api.NewServer(cfg, sess, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "snapvault API started\n")
	fmt.Fprintf(out, "  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	if st := sess.State(); st != nil {
		fmt.Fprintf(out, "  Archive: %s (%d messages)\n", st.Root, st.Dataset.Len())
	}
	fmt.Fprintf(out, "  Data directory: %s\n", cfg.Data.DataDir)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	var runErr error
	select {
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		runErr = err
	case <-ctx.Done():
		logger.Info("shutdown requested")
	}

	fmt.Fprintln(out, "Shutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	return runErr
}
