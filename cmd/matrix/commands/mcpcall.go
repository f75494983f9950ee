package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/mcp"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
)

var (
	callEndpoint string
	callTool     string
	callArgs     string
	callTimeoutF time.Duration
)

var mcpCallCmd = &cobra.Command{
	Use:   "mcp-call",
	Short: "Call a tool on a running matrix MCP server",
	Long: `Connects to a streamable MCP endpoint and invokes one tool. Without --tool
the available tools are listed.`,
	Example: `  matrix mcp-call --endpoint http://clinic-gw:8088/mcp
  matrix mcp-call --tool set_topology --args '{"mode":"OFFLINE","updated_by":"ops"}'`,
	RunE: runMCPCall,
}

func init() {
	f := mcpCallCmd.Flags()
	f.StringVar(&callEndpoint, "endpoint", "http://127.0.0.1:8088/mcp", "MCP endpoint URL")
	f.StringVar(&callTool, "tool", "", "tool name")
	f.StringVar(&callArgs, "args", "{}", "tool arguments as a JSON object")
	f.DurationVar(&callTimeoutF, "timeout", 5*time.Minute, "overall call timeout")
}

func runMCPCall(cmd *cobra.Command, _ []string) error {
	var args map[string]any
	if err := json.Unmarshal([]byte(callArgs), &args); err != nil {
		return fmt.Errorf("--args: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, cancel := contextWithTimeout(cmd, callTimeoutF)
	defer cancel()

	client, err := mcp.NewStreamableClient(ctx, callEndpoint, mcp.WithLogger(logging.WithComponent("mcp.client")))
	if err != nil {
		return err
	}
	defer client.Close()

	if callTool == "" {
		tools, err := client.ListTools(ctx)
		if err != nil {
			return err
		}
		for _, t := range tools {
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", t.Name, t.Description)
		}
		return nil
	}

	out, err := client.CallTool(ctx, callTool, args)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
