package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Harshitk-cp/diagnostician/internal/config"
	"github.com/Harshitk-cp/diagnostician/internal/knowledge"
	"github.com/spf13/cobra"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect and validate knowledge bases",
}

var kbFile string

var kbShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print conditions, tests and candidate evidence",
	Long: `Print the knowledge base the server would use: --file if given, else
KNOWLEDGE_PATH, else the built-in default.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := kbFile
		if path == "" {
			path = config.KnowledgePath()
		}
		kb := knowledge.Default()
		if path != "" {
			loaded, err := knowledge.Load(path)
			if err != nil {
				return err
			}
			kb = loaded
		}
		printKnowledge(cmd.OutOrStdout(), kb)
		return nil
	},
}

var kbValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check that a YAML knowledge base loads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kb, err := knowledge.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d conditions, %d tests, %d evidence names\n",
			len(kb.Conditions()), len(kb.Tests()), len(kb.EvidenceNames()))
		return nil
	},
}

func init() {
	kbShowCmd.Flags().StringVar(&kbFile, "file", "", "Path to a YAML knowledge base")
	kbCmd.AddCommand(kbShowCmd)
	kbCmd.AddCommand(kbValidateCmd)
}

func printKnowledge(out io.Writer, kb *knowledge.Base) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONDITION\tNAME\tCODE\tPRIOR")
	for _, c := range kb.Conditions() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\n", c.ID, c.Name, c.Code, c.Prior)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "TEST\tEVIDENCE\tCOST\tTARGETS")
	for _, t := range kb.Tests() {
		fmt.Fprintf(w, "%s\t%s\t$%.0f\t%s\n", t.Name, t.EvidenceName, t.Cost, strings.Join(t.Targets, ","))
	}
	_ = w.Flush()

	if candidates := kb.CandidateEvidence(); len(candidates) > 0 {
		fmt.Fprintf(out, "\nCandidate evidence: %s\n", strings.Join(candidates, ", "))
	}
}
