package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/Harshitk-cp/diagnostician/internal/api"
	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/service"
	"github.com/Harshitk-cp/diagnostician/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [description]",
	Short: "Run one case interactively",
	Long: `Present a case and answer the panel's questions on stdin, one answer per
line, until it reaches a diagnosis. End of input leaves the case suspended.

Examples:
  # Interactive
  diagnose run "45 year old woman with chest pain and dyspnea"

  # Scripted answers and a known test result
  printf 'female, 45\nno allergies\n' | diagnose run --test troponin=elevated "chest pain"
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCase,
}

var (
	runTests []string
	runJSON  bool
)

func init() {
	runCmd.Flags().StringSliceVar(&runTests, "test", nil,
		"Known test result as name=value, applied right after the case starts (repeatable)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the final case state as JSON")
}

func parseTestFlag(raw string) (string, string, error) {
	name, value, ok := strings.Cut(raw, "=")
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	if !ok || name == "" || value == "" {
		return "", "", fmt.Errorf("invalid --test %q, want name=value", raw)
	}
	return name, value, nil
}

func runCase(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := api.NewDependencies(nil, logger).Service(store.NewMemoryCaseStore(), logger)
	out := cmd.OutOrStdout()

	state, err := svc.Start(ctx, uuid.Nil, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("start case: %w", err)
	}
	fmt.Fprintf(out, "Case %s\n", state.ID)

	for _, raw := range runTests {
		name, value, err := parseTestFlag(raw)
		if err != nil {
			return err
		}
		updates, err := svc.RecordTestResult(ctx, state.ID, name, value, 0)
		if err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
		fmt.Fprintf(out, "Recorded %s=%s (%d beliefs moved)\n", name, value, len(updates))
	}

	state, err = converse(ctx, svc, state, cmd.InOrStdin(), out)
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}
	printOutcome(out, state)
	return nil
}

// converse answers suspensions from in until the case finalizes or input ends.
func converse(ctx context.Context, svc *service.InvestigationService, state *domain.CaseState, in io.Reader, out io.Writer) (*domain.CaseState, error) {
	scanner := bufio.NewScanner(in)
	for state.Status == domain.CaseStatusSuspended {
		fmt.Fprintln(out, "\nQuestions:")
		for i, q := range state.PendingQuestions {
			fmt.Fprintf(out, "  %d. [%s] %s\n", i+1, q.Category, q.Text)
		}
		fmt.Fprint(out, "> ")

		var answer string
		for answer == "" {
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return nil, fmt.Errorf("read answer: %w", err)
				}
				fmt.Fprintln(out, "\nNo more input; case left suspended.")
				return state, nil
			}
			answer = strings.TrimSpace(scanner.Text())
		}

		next, err := svc.Resume(ctx, state.ID, answer)
		if err != nil {
			return nil, fmt.Errorf("resume case: %w", err)
		}
		state = next
	}
	return state, nil
}

func printOutcome(out io.Writer, state *domain.CaseState) {
	fmt.Fprintf(out, "\nStatus:     %s\n", state.Status)
	if state.FinalDiagnosis != "" {
		fmt.Fprintf(out, "Diagnosis:  %s (%.0f%%)\n", state.FinalDiagnosis, state.Confidence*100)
	}
	fmt.Fprintf(out, "Rounds:     %d debate, %d interaction\n", state.DebateRound, state.InteractionRound)
	fmt.Fprintf(out, "Cost:       $%.0f of $%.0f\n", state.CumulativeCost, state.CostBudget)
	fmt.Fprintf(out, "Quality:    %.2f\n", state.ReasoningQuality)

	if len(state.Differential) > 0 {
		fmt.Fprintln(out, "\nDifferential:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  RANK\tCONDITION\tPOSTERIOR\tREPORTED")
		for _, d := range state.Differential {
			fmt.Fprintf(w, "  %d\t%s\t%.3f\t%.2f\n", d.Rank, d.ConditionID, d.Probability, d.ReportedProbability)
		}
		_ = w.Flush()
	}

	if len(state.OrderedTests) > 0 {
		fmt.Fprintln(out, "\nOrdered tests:")
		for _, t := range state.OrderedTests {
			mark := "pending"
			if t.ResultReceived {
				mark = "resulted"
			}
			fmt.Fprintf(out, "  - %s ($%.0f, %s)\n", t.Name, t.Cost, mark)
		}
	}
}
