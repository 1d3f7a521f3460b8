package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/cloudguard/cli/internal/client"
	"github.com/telhawk-systems/cloudguard/cli/pkg/output"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Send sign-in envelopes to the signin service",
	Long: `Send one envelope, or a JSON array of envelopes, to the signin service.

Reads from the named file, or from stdin when the file is "-" or omitted.`,
	Example: `  guardctl ingest event.json
  guardctl seed --scenario root --dry-run | guardctl ingest -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printer(cmd)
		if err != nil {
			return err
		}

		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		data, err := readInput(cmd, path)
		if err != nil {
			return err
		}
		envelopes, err := splitEnvelopes(data)
		if err != nil {
			return err
		}

		c := signinClient(cmd)
		results := make([]*client.Result, 0, len(envelopes))
		var failed int
		for i, env := range envelopes {
			res, err := c.SendEvent(cmd.Context(), env)
			if err != nil {
				failed++
				p.Error("Envelope %d rejected: %v", i+1, err)
				continue
			}
			results = append(results, res)
		}

		if err := p.Print(results, func() *output.Table { return resultTable(results) }); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d envelopes failed", failed, len(envelopes))
		}
		p.Success("Sent %d envelope(s)", len(envelopes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// splitEnvelopes accepts a single object, a JSON array, or a stream of
// concatenated objects such as newline-delimited JSON.
func splitEnvelopes(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("no input")
	}
	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("empty array")
		}
		return list, nil
	}

	var out []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil
}

func resultTable(results []*client.Result) *output.Table {
	t := output.NewTable("EVENT ID", "IDENTITY", "OUTCOME", "REASON", "SEVERITY", "FAILED")
	for _, r := range results {
		reason, severity, failed := "-", "-", "-"
		if r.Alert != nil {
			reason = string(r.Alert.Reason)
			severity = string(r.Alert.Severity)
			if r.Alert.FailedAttempts > 0 {
				failed = strconv.Itoa(r.Alert.FailedAttempts)
			}
		}
		t.AddRow(orDash(r.EventID), orDash(r.Identity), r.Outcome, reason, severity, failed)
	}
	return t
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
