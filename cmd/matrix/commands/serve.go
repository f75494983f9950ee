package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/mcp"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
)

var (
	serveTransport string
	serveAddr      string
	servePath      string
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Expose triage and topology tools over MCP",
	Long: `Starts an MCP server offering triage_case, get_topology, set_topology and,
when configured, case lookup and service health tools.

The stdio transport serves one client on stdin/stdout. The http transport
serves the streamable MCP endpoint plus /metrics and /healthz.`,
	Example: `  matrix serve-mcp
  matrix serve-mcp --transport http --addr :8088`,
	RunE: runServeMCP,
}

func init() {
	serveMCPCmd.Flags().StringVar(&serveTransport, "transport", "stdio", "stdio or http")
	serveMCPCmd.Flags().StringVar(&serveAddr, "addr", ":8088", "listen address for the http transport")
	serveMCPCmd.Flags().StringVar(&servePath, "path", "/mcp", "MCP endpoint path for the http transport")
}

func runServeMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(cmd, appOptions{withEngine: true, watchTopology: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv, err := mcp.NewServer(mcp.ServerConfig{
		Runner:   a.runner,
		Topology: a.topology,
		Cases:    a.cases,
		Health:   a.health,
		Logger:   logging.WithComponent("mcp"),
	})
	if err != nil {
		return err
	}

	switch serveTransport {
	case "stdio":
		a.logger.Info("serving MCP on stdio")
		return srv.Run(ctx, &sdkmcp.StdioTransport{})
	case "http":
		return a.serveHTTP(ctx, srv)
	default:
		return fmt.Errorf("unknown transport %q", serveTransport)
	}
}

func (a *app) serveHTTP(ctx context.Context, srv *mcp.Server) error {
	mux := http.NewServeMux()
	mux.Handle(servePath, srv.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		for _, s := range a.health.Check(r.Context()) {
			if !s.Healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = printJSON(w, s)
				return
			}
		}
		_, _ = w.Write([]byte("ok\n"))
	})

	hs := &http.Server{
		Addr:              serveAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving MCP over http", "addr", serveAddr, "path", servePath)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
