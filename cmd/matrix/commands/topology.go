package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/topology"
)

var (
	topoMode      string
	topoFallback  bool
	topoVision    bool
	topoExecutive bool
	topoData      bool
	topoBy        string
	healthBackend bool
)

var topologyCmd = &cobra.Command{
	Use:     "topology",
	Aliases: []string{"topo"},
	Short:   "Inspect or change the deployment topology",
}

var topologyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active topology policy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())
		return printJSON(cmd.OutOrStdout(), a.topology.Snapshot())
	},
}

var topologySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update topology fields",
	Long: `Applies a partial update to the topology policy. Only flags that are given
change. The result survives restarts when store.backend is redis.`,
	Example: `  matrix topology set --mode offline
  matrix topology set --executive=false --by dr.okafor`,
	RunE: runTopologySet,
}

var topologyHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe configured model backends and stores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd, appOptions{withEngine: healthBackend, withRetrieval: true})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		statuses := a.health.Check(cmd.Context())
		if err := printJSON(cmd.OutOrStdout(), statuses); err != nil {
			return err
		}
		var down []string
		for _, s := range statuses {
			if !s.Healthy {
				down = append(down, s.Name)
			}
		}
		if len(down) > 0 {
			return fmt.Errorf("unhealthy: %s", strings.Join(down, ", "))
		}
		return nil
	},
}

func init() {
	f := topologySetCmd.Flags()
	f.StringVar(&topoMode, "mode", "", "offline, hybrid or cloud")
	f.BoolVar(&topoFallback, "fallback", true, "use the rule-based plan when models fail")
	f.BoolVar(&topoVision, "vision", true, "allow image analysis")
	f.BoolVar(&topoExecutive, "executive", true, "allow the executive escalation step")
	f.BoolVar(&topoData, "data-collection", false, "persist identifying case fields")
	f.StringVar(&topoBy, "by", "cli", "operator recorded on the change")

	topologyHealthCmd.Flags().BoolVar(&healthBackend, "backends", true, "include model backends")

	topologyCmd.AddCommand(topologyShowCmd, topologySetCmd, topologyHealthCmd)
}

func runTopologySet(cmd *cobra.Command, _ []string) error {
	u, err := updateFromFlags(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	p, err := a.topology.Update(cmd.Context(), u, topoBy)
	if err != nil {
		return err
	}
	if !strings.EqualFold(a.cfg.Store.Backend, "redis") {
		a.logger.Warn("no topology persister configured, change applies to this process only")
	}
	return printJSON(cmd.OutOrStdout(), p)
}

func updateFromFlags(cmd *cobra.Command) (topology.Update, error) {
	var u topology.Update
	f := cmd.Flags()
	if f.Changed("mode") {
		m, err := topology.ParseMode(topoMode)
		if err != nil {
			return u, err
		}
		u.Mode = &m
	}
	if f.Changed("fallback") {
		u.FallbackEnabled = &topoFallback
	}
	if f.Changed("vision") {
		u.VisionEnabled = &topoVision
	}
	if f.Changed("executive") {
		u.ExecutiveAgentEnabled = &topoExecutive
	}
	if f.Changed("data-collection") {
		u.DataCollectionEnabled = &topoData
	}
	if u.Empty() {
		return u, fmt.Errorf("nothing to update")
	}
	return u, nil
}

// openApp loads config and wires the parts opts asks for.
func openApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(cmd.Context(), cfg, opts)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), d)
}
