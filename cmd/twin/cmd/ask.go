package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twinlab/digital-twin/internal/core"
	"github.com/twinlab/digital-twin/internal/llm"
)

var (
	askStream bool
	askTopK   int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the digital twin a single question",
	Long: `Ask the digital twin a single question and print the answer.

Examples:
  twin ask "Tell me about your work experience"
  twin ask --stream --top-k 5 "What are your career goals?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askStream, "stream", false, "Print the answer as it is generated")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "Number of profile chunks to retrieve (defaults to RAG_TOP_K)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	if askStream {
		return streamAnswer(cmd.Context(), cmd.OutOrStdout(), a.twin, question, askTopK)
	}

	ans, err := a.twin.AnswerTopK(cmd.Context(), question, askTopK)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answerStyle.Render(ans.Text))
	return nil
}

// streamAnswer prints fragments as they arrive and reports a mid-stream error.
func streamAnswer(ctx context.Context, w io.Writer, twin *core.RAGService, question string, topK int) error {
	sa, err := twin.AnswerStream(ctx, question, topK)
	if err != nil {
		return err
	}

	var streamErr error
	for frag := range sa.Fragments {
		switch frag.Kind {
		case llm.FragmentData:
			fmt.Fprint(w, frag.Text)
		case llm.FragmentError:
			streamErr = frag.Err
		}
	}
	fmt.Fprintln(w)
	return streamErr
}
