package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wujekbizon/wolfmed-progress/internal/client"
)

var askTimeout time.Duration

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and stream the pipeline progress",
	Long: `Ask a question against the knowledge base and stream live progress
while the server parses, searches, and generates the answer.

A fresh job id is created for every invocation. When stdout is a terminal
an interactive progress display is shown; otherwise updates are printed
line by line.

Examples:
  progress ask "Jakie są objawy hipoglikemii?"
  progress ask "How is insulin dosed?" --timeout 2m
  progress ask "What is CPR?" > /dev/null  # plain output`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 5*time.Minute, "give up waiting after this long")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	jobID := uuid.NewString()

	ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
	defer cancel()

	// Open the stream before submitting the query so no early events are
	// missed. The server replays from the start anyway, but attaching first
	// keeps the display live from the first stage.
	listener := client.NewListener(streamEndpoint(), jobID)
	listener.StartListening()
	defer listener.StopListening()

	queryErr := make(chan error, 1)
	go func() {
		queryErr <- submitQuery(ctx, jobID, question)
	}()

	if err := followJob(ctx, listener, jobID, queryErr); err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "job %s finished\n", jobID)
	}
	return nil
}

// submitQuery posts the question to the server and waits for the answer.
// The progress stream carries the live updates; this call returns the final
// synthesized answer once the pipeline is done.
func submitQuery(ctx context.Context, jobID, question string) error {
	body, err := json.Marshal(map[string]string{
		"jobId":    jobID,
		"question": question,
	})
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, queryEndpoint(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(msg))
	}

	var answer struct {
		Answer  string   `json:"answer"`
		Sources []string `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}

	fmt.Println()
	fmt.Println(answer.Answer)
	if verbose && len(answer.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, s := range answer.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	return nil
}

// followJob renders progress until the job reaches a terminal state. It picks
// the interactive display when stdout is a terminal, plain output otherwise.
func followJob(ctx context.Context, listener *client.Listener, jobID string, queryErr <-chan error) error {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if err := runJobProgress(ctx, listener, jobID); err != nil {
			return err
		}
	} else {
		if err := followPlain(ctx, listener); err != nil {
			return err
		}
	}

	if queryErr != nil {
		select {
		case err := <-queryErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// followPlain prints progress updates line by line for non-interactive use.
func followPlain(ctx context.Context, listener *client.Listener) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastStage string
	var lastLogs int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		st := listener.State()
		if st.Stage != "" && st.Stage != lastStage {
			fmt.Fprintf(os.Stderr, "[%s] %s (%d%%)\n", st.Stage, st.Message, st.Progress)
			lastStage = st.Stage
		}
		if verbose {
			for _, entry := range st.Logs[lastLogs:] {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", entry.Level, entry.Message)
			}
			lastLogs = len(st.Logs)
		}
		if st.IsComplete {
			if st.Err != "" {
				return fmt.Errorf("%s", st.Err)
			}
			return nil
		}
	}
}
