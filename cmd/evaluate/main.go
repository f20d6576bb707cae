// evaluate scores a saved conversation transcript: four fixed prompts
// run in parallel against the chat endpoint and the combined report is
// printed as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/config"
	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/backend"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/chat"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/eval"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	server := flag.String("server", "", "avatar server base URL (overrides AVATAR_SERVER_URL)")
	file := flag.String("file", "", "transcript file ('-' or empty reads stdin)")
	logLevel := flag.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flag.Parse()

	if *server != "" {
		cfg.ServerURL = *server
	}
	log.Init(*logLevel)

	transcript, err := readTranscript(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read transcript: %v\n", err)
		os.Exit(1)
	}

	client, err := backend.NewClient(cfg.ServerURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	runner, err := eval.NewRunner(completerFor(client))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	report, err := runner.Evaluate(context.Background(), transcript)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evaluation failed: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// completerFor adapts the streamed chat endpoint into a one-shot
// completion call: each evaluation prompt runs in its own session and
// the chunks are joined.
func completerFor(client *backend.Client) eval.CompleteFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		stream, err := client.StreamChat(ctx, uuid.NewString(), prompt)
		if err != nil {
			return "", err
		}
		defer stream.Close()

		var sb strings.Builder
		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			clean, _ := chat.StripLatencyTags(chunk)
			sb.WriteString(clean)
		}
		return sb.String(), nil
	}
}

func readTranscript(path string) (string, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("transcript is empty")
	}
	return text, nil
}
