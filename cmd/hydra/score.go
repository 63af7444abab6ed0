package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-hydra/internal/application"
	"github.com/ahrav/go-hydra/internal/domain"
)

type scoreOptions struct {
	file       string
	scheme     string
	userWeight int
	jsonOut    bool
}

func newScoreCmd(root *rootOptions) *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Rank contest results from a JSON file",
		Long: `Reads contest results and prints the ranked leaderboard.

The input is either a JSON array of results or an object with "results",
"scheme" and "user_weight" fields. Flags override the object's fields.
Use "-" to read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return runScore(cmd, cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "-", "results file, or - for stdin")
	cmd.Flags().StringVarP(&opts.scheme, "scheme", "s", "", "scheme: weighted-avg, tournament or elo")
	cmd.Flags().IntVarP(&opts.userWeight, "user-weight", "w", 0, "percentage given to the human score (0-100)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the leaderboard as JSON")
	return cmd
}

func runScore(cmd *cobra.Command, cfg *application.Config, opts *scoreOptions) error {
	data, err := readInput(cmd.InOrStdin(), opts.file)
	if err != nil {
		return err
	}
	in, err := decodeComputeInput(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", opts.file, err)
	}

	if opts.scheme != "" {
		in.Scheme = domain.Scheme(opts.scheme)
	}
	if in.Scheme == "" {
		in.Scheme = domain.Scheme(cfg.Scoring.DefaultScheme)
	}
	if cmd.Flags().Changed("user-weight") {
		in.UserWeight = &opts.userWeight
	}
	if in.UserWeight == nil {
		in.UserWeight = domain.Int(cfg.Scoring.UserWeight)
	}

	registry, err := application.NewSchemeRegistry(cfg.SchemeConfig())
	if err != nil {
		return err
	}
	scorer := application.NewScorer(registry, nil, nil)
	if err := scorer.Validate(in); err != nil {
		return err
	}
	ranked := scorer.ComputeScores(in)

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ranked)
	}
	renderLeaderboard(out, in, ranked)
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return data, nil
}

// decodeComputeInput accepts a bare result array or a full ComputeInput.
func decodeComputeInput(data []byte) (application.ComputeInput, error) {
	var in application.ComputeInput
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &in.Results)
		return in, err
	}
	err := json.Unmarshal(trimmed, &in)
	return in, err
}

func renderLeaderboard(w io.Writer, in application.ComputeInput, ranked []domain.ScoredModel) {
	fmt.Fprintf(w, "%s %s\n", bold("Leaderboard"),
		gray(fmt.Sprintf("(%s, user weight %d%%, %d results)", in.Scheme, in.Weight(), len(in.Results))))
	if len(ranked) == 0 {
		fmt.Fprintln(w, gray("no results"))
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Rank", "Model", "Score", "Avg User", "Avg Arbiter"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, m := range ranked {
		table.Append([]string{
			strconv.Itoa(m.Rank),
			m.ModelID,
			formatScore(&m.FinalScore),
			formatScore(m.AvgUser),
			formatScore(m.AvgArbiter),
		})
	}
	table.Render()
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
