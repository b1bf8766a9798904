package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/Shepherd/backend/internal/realtime"
)

var publishCmd = &cobra.Command{
	Use:   "publish <type> [key=value...]",
	Short: "Publish an event to a tenant (dev server)",
	Long: `Post an envelope to the dev server, which pushes it to every socket of the
tenant subscribed to its type. Values are strings unless --json is used.

Examples:
  shepherd publish -t st-mark member.updated id=42 name="Ruth"
  shepherd publish -t st-mark event.created --json '{"id":"7","capacity":40}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredentials(); err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetString("json")

		fields, err := publishFields(args[1:], raw)
		if err != nil {
			return err
		}
		env := realtime.NewEnvelope(args[0], fields)
		body, err := env.MarshalJSON()
		if err != nil {
			return err
		}

		endpoint := strings.TrimRight(cfg.Generation.APIBaseURL, "/") +
			"/tenants/" + url.PathEscape(cfg.Realtime.TenantID) + "/events"
		printVerbose("POST %s", endpoint)

		var result struct {
			Type      string `json:"type"`
			Delivered int    `json:"delivered"`
		}
		resp, err := resty.New().
			SetJSONUnmarshaler(sonic.Unmarshal).
			R().
			SetContext(cmd.Context()).
			SetAuthToken(cfg.Realtime.Token).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			SetResult(&result).
			Post(endpoint)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("publish: %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s delivered to %d socket(s)\n", result.Type, result.Delivered)
		return nil
	},
}

// publishFields merges --json with key=value arguments, arguments winning
func publishFields(pairs []string, raw string) (map[string]any, error) {
	fields := make(map[string]any)
	if raw != "" {
		if err := sonic.UnmarshalString(raw, &fields); err != nil {
			return nil, fmt.Errorf("parse --json: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		fields[k] = v
	}
	delete(fields, "type")
	return fields, nil
}

func init() {
	publishCmd.Flags().String("json", "", "payload fields as a JSON object")
	rootCmd.AddCommand(publishCmd)
}
