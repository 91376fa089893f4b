package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wujekbizon/wolfmed-progress/internal/client"
)

var (
	ingestSource  string
	ingestTimeout time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.md>",
	Short: "Add a Markdown document to the knowledge base",
	Long: `Add a Markdown document to the knowledge base and stream the
ingestion progress chunk by chunk.

Re-ingesting the same source replaces its previous chunks, so running
the command twice on an updated file refreshes the knowledge base.

Examples:
  progress ingest notes/hipoglikemia.md
  progress ingest export.md --source "podstawy-ratownictwa"`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source name stored with the chunks (default: file name)")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 10*time.Minute, "give up waiting after this long")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	source := ingestSource
	if source == "" {
		source = filepath.Base(path)
	}

	jobID := uuid.NewString()

	ctx, cancel := context.WithTimeout(cmd.Context(), ingestTimeout)
	defer cancel()

	listener := client.NewListener(streamEndpoint(), jobID)
	listener.StartListening()
	defer listener.StopListening()

	ingestErr := make(chan error, 1)
	go func() {
		ingestErr <- submitIngest(ctx, jobID, source, string(content))
	}()

	if err := followJob(ctx, listener, jobID, ingestErr); err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "job %s finished\n", jobID)
	}
	return nil
}

// submitIngest posts the document to the server and reports the result.
func submitIngest(ctx context.Context, jobID, source, content string) error {
	body, err := json.Marshal(map[string]string{
		"jobId":   jobID,
		"source":  source,
		"content": content,
	})
	if err != nil {
		return fmt.Errorf("encode ingest request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ingestEndpoint(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(msg))
	}

	var result struct {
		Title         string `json:"title"`
		ChunksCreated int    `json:"chunksCreated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode ingest result: %w", err)
	}

	fmt.Println()
	if result.Title != "" {
		fmt.Printf("Ingested %q (%d chunks)\n", result.Title, result.ChunksCreated)
	} else {
		fmt.Printf("Ingested %s (%d chunks)\n", source, result.ChunksCreated)
	}
	return nil
}
