package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/opscore/internal/api"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

var (
	emitAddr   string
	emitSource string
	emitUserID string
)

var emitCmd = &cobra.Command{
	Use:   "emit TYPE [JSON]",
	Short: "Emit one event on a running opscore",
	Long:  "Posts an event to the HTTP API of a running opscore and prints the emitted event.",
	Example: `  opscore emit lead:created '{"leadId":"L-1","score":72}'
  opscore emit system:tick --addr http://ops.internal:8080`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := ""
		if len(args) == 2 {
			payload = args[1]
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		return postEvent(ctx, http.DefaultClient, emitAddr, args[0], payload, cmd.OutOrStdout())
	},
}

func init() {
	emitCmd.Flags().StringVar(&emitAddr, "addr", "http://localhost:8080", "base URL of the opscore HTTP API")
	emitCmd.Flags().StringVar(&emitSource, "source", "cli", "metadata source recorded on the event")
	emitCmd.Flags().StringVar(&emitUserID, "user", "", "metadata user id")
	rootCmd.AddCommand(emitCmd)
}

func postEvent(ctx context.Context, client *http.Client, addr, eventType, payload string, out io.Writer) error {
	req := api.EmitRequest{
		Type:     event.Type(eventType),
		Metadata: event.Metadata{Source: emitSource, UserID: emitUserID},
	}
	if payload != "" {
		if !json.Valid([]byte(payload)) {
			return fmt.Errorf("payload is not valid JSON")
		}
		req.Data = json.RawMessage(payload)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	url := strings.TrimRight(addr, "/") + "/v1/events"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			return fmt.Errorf("emit %s: %s (HTTP %d)", eventType, e.Error, resp.StatusCode)
		}
		return fmt.Errorf("emit %s: HTTP %d", eventType, resp.StatusCode)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		_, err = out.Write(respBody)
		return err
	}
	_, err = fmt.Fprintln(out, pretty.String())
	return err
}
