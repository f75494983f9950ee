package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/mcp"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/runner"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/triage"
)

var (
	runInput string
	runImage string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Triage one case or a batch of cases",
	Long: `Reads a patient intake as JSON, runs it through the triage workflow and
prints the resulting case state. The input may be a single object or an
array; arrays run concurrently up to runner.max_concurrency.`,
	Example: `  matrix run --input case.json
  echo '{"bp_systolic":165,"bp_diastolic":112,"symptoms":["headache"]}' | matrix run
  matrix run --input case.json --image wound.jpg`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "-", "intake JSON file, - for stdin")
	runCmd.Flags().StringVar(&runImage, "image", "", "clinical image attached to a single case")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := readInput(cmd.InOrStdin(), runInput)
	if err != nil {
		return err
	}
	patients, err := parseIntake(data)
	if err != nil {
		return err
	}
	if runImage != "" {
		if len(patients) != 1 {
			return fmt.Errorf("--image applies to a single case, got %d", len(patients))
		}
		img, err := readImage(runImage)
		if err != nil {
			return err
		}
		patients[0].Image = img
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, appOptions{withEngine: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if len(patients) == 1 {
		state, err := a.runner.Run(ctx, patients[0])
		if state != nil {
			if encErr := enc.Encode(state); encErr != nil {
				return encErr
			}
		}
		return err
	}

	tasks := make([]*runner.Task, len(patients))
	for i, p := range patients {
		tasks[i] = &runner.Task{ID: strconv.Itoa(i), Patient: p}
	}
	type batchItem struct {
		Task  string            `json:"task"`
		Case  *triage.CaseState `json:"case,omitempty"`
		Error string            `json:"error,omitempty"`
	}
	results := a.runner.RunBatch(ctx, tasks)
	out := make([]batchItem, len(results))
	failed := 0
	for i, r := range results {
		out[i] = batchItem{Task: r.TaskID, Case: r.Case}
		if r.Error != nil {
			out[i].Error = r.Error.Error()
			failed++
		}
	}
	if err := enc.Encode(out); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cases failed", failed, len(results))
	}
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// parseIntake accepts one intake object or an array of them.
func parseIntake(data []byte) ([]triage.PatientData, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty intake")
	}
	var args []mcp.TriageArgs
	if data[0] == '[' {
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, fmt.Errorf("decode intake: %w", err)
		}
	} else {
		var one mcp.TriageArgs
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decode intake: %w", err)
		}
		args = append(args, one)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty intake")
	}

	patients := make([]triage.PatientData, len(args))
	for i, a := range args {
		p, err := a.PatientData()
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i, err)
		}
		patients[i] = p
	}
	return patients, nil
}

func readImage(path string) (*message.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &message.Image{Data: data, MIMEType: mime.TypeByExtension(filepath.Ext(path))}, nil
}
