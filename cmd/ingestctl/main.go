// Command ingestctl is an operator CLI against a running ingestcored:
// submit a playlist URL, poll a job or playlist's status.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	var serverAddr string

	root := &cobra.Command{
		Use:   "ingestctl",
		Short: "Operator CLI for ingestcored",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "ingestcored base URL")

	root.AddCommand(submitCommand(&serverAddr), statusCommand(&serverAddr), jobCommand(&serverAddr))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func submitCommand(serverAddr *string) *cobra.Command {
	var deviceTierHint string

	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Submit a playlist URL for parsing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]any{
				"url": args[0],
				"options": map[string]any{
					"deviceTierHint": deviceTierHint,
				},
			})
			if err != nil {
				return err
			}
			resp, err := postJSON(*serverAddr+"/api/playlist/parse", body)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&deviceTierHint, "tier", "", "device tier hint (tv, mobile, desktop)")
	return cmd
}

func statusCommand(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <hash>",
		Short: "Show a playlist's ingest progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := getJSON(*serverAddr + "/api/playlist/" + args[0] + "/status")
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

func jobCommand(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show a queued job's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := getJSON(*serverAddr + "/api/jobs/" + args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func postJSON(url string, body []byte) (map[string]any, error) {
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func getJSON(url string) (map[string]any, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) (map[string]any, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ingestctl: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("ingestcored returned %d: %v", resp.StatusCode, out["error"])
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v map[string]any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
