package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var chatTopK int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the digital twin interactively",
	Long: `Start an interactive session. Blank lines are ignored; type exit, quit
or q to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().IntVar(&chatTopK, "top-k", 0, "Number of profile chunks to retrieve (defaults to RAG_TOP_K)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ask := func(ctx context.Context, question string) (string, error) {
		ans, err := a.twin.AnswerTopK(ctx, question, chatTopK)
		if err != nil {
			return "", err
		}
		return ans.Text, nil
	}
	return chatLoop(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), ask)
}

func isExit(line string) bool {
	switch strings.ToLower(line) {
	case "exit", "quit", "q":
		return true
	}
	return false
}

// chatLoop reads questions line by line until EOF or an exit word. A failed
// answer is printed and the session continues.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, ask func(context.Context, string) (string, error)) error {
	fmt.Fprintln(out, titleStyle.Render("Digital Twin"))
	fmt.Fprintln(out, dimStyle.Render("Ask me about my background, skills and experience. Type 'exit' to quit."))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n"+promptStyle.Render("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isExit(line) {
			fmt.Fprintln(out, dimStyle.Render("Goodbye!"))
			return nil
		}

		answer, err := ask(ctx, line)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("Error: ")+err.Error())
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		fmt.Fprintln(out, promptStyle.Render("Twin: ")+answerStyle.Render(answer))
	}
}
