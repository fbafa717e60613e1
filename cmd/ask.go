package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kevinvandever/secureask/internal/engine"
	"github.com/kevinvandever/secureask/internal/model"
)

var (
	askSources  []string
	askMaxHops  int
	askUserID   string
	askNoAnswer bool
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a research question with cited evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "ask")
		if err != nil {
			return err
		}
		defer env.Close()

		sources, err := model.ParseSources(askSources)
		if err != nil {
			return err
		}

		resp, err := env.Engine.ProcessQuery(ctx, engine.QueryRequest{
			Question:      args[0],
			MaxHops:       askMaxHops,
			Sources:       sources,
			UserID:        askUserID,
			IncludeAnswer: !askNoAnswer,
		})
		if err != nil {
			return eris.Wrap(err, "process query")
		}

		if askJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		formatQueryResponse(os.Stdout, resp)
		return nil
	},
}

func init() {
	askCmd.Flags().StringSliceVar(&askSources, "sources", nil, "sources to query (sec, reddit, tiktok; default all)")
	askCmd.Flags().IntVar(&askMaxHops, "max-hops", 2, "graph traversal depth for node lookup")
	askCmd.Flags().StringVar(&askUserID, "user", "", "user id recorded in the query log")
	askCmd.Flags().BoolVar(&askNoAnswer, "no-answer", false, "return citations only, without a synthesized answer")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw response JSON")
	rootCmd.AddCommand(askCmd)
}

// formatQueryResponse writes a human-readable rendering of the response.
func formatQueryResponse(out io.Writer, resp *model.QueryResponse) {
	header := color.New(color.FgCyan, color.Bold).SprintFunc()
	label := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(out, "%s %s\n", header("Question:"), resp.Question)
	fmt.Fprintf(out, "%s %s\n", label("Status:"), resp.Status)

	if resp.Result == nil {
		return
	}

	fmt.Fprintf(out, "\n%s\n", resp.Result.Answer)

	if len(resp.Result.Citations) > 0 {
		fmt.Fprintf(out, "\n%s\n", header("Citations"))
		for i, c := range resp.Result.Citations {
			fmt.Fprintf(out, "%2d. [%s] %s\n", i+1, c.Source, c.URL)
			fmt.Fprintf(out, "    %s\n", c.Snippet)
		}
	}

	fmt.Fprintf(out, "\n%s %s\n", label("Reasoning path:"), strings.Join(resp.Result.GraphPath, " -> "))
	fmt.Fprintf(out, "%s %dms\n", label("Processing time:"), resp.Result.ProcessingTimeMS)
}
