package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/Shepherd/backend/internal/realtime"
)

var errChannelClosed = errors.New("push channel closed by server")

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print envelopes from a tenant's push channel",
	Long: `Connect to the tenant push channel and print every envelope as one JSON
line. The connection is kept alive and re-established with backoff until
interrupted or closed by the server with a fatal code.

Examples:
  shepherd listen -t st-mark --token dev-token
  shepherd listen -t st-mark --events member.updated,event.created -n 5`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireCredentials(); err != nil {
			return err
		}
		events, _ := cmd.Flags().GetStringSlice("events")
		if len(events) == 0 {
			events = cfg.Realtime.SubscribeEvents
		}
		limit, _ := cmd.Flags().GetInt("count")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return listen(ctx, cmd, events, limit)
	},
}

func listen(ctx context.Context, cmd *cobra.Command, events []string, limit int) error {
	out := cmd.OutOrStdout()
	msgs := make(chan realtime.Envelope, 64)
	closed := make(chan struct{}, 1)

	var client *realtime.Client
	client = realtime.New(
		realtime.WithAutoConnect(false),
		realtime.WithBaseURL(cfg.Realtime.BaseURL),
		realtime.WithCredentials(cfg.Realtime.TenantID, cfg.Realtime.Token),
		realtime.WithSubscriptions(events...),
		realtime.WithKeepAlive(cfg.Realtime.KeepAlive),
		realtime.WithMaxReconnectAttempts(cfg.Realtime.MaxReconnectTries),
		realtime.WithLogger(logger.Component("cli")),
		realtime.WithOnMessage(func(e realtime.Envelope) {
			select {
			case msgs <- e:
			default:
			}
		}),
		realtime.WithOnStateChange(func(from, to realtime.State) {
			printVerbose("state: %s -> %s", from, to)
		}),
		realtime.WithOnDisconnect(func() {
			if client.State() == realtime.Disconnected {
				select {
				case closed <- struct{}{}:
				default:
				}
			}
		}),
	)
	defer client.Close()
	client.Connect()

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			return errChannelClosed
		case e := <-msgs:
			data, err := e.MarshalJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}

func init() {
	listenCmd.Flags().StringSlice("events", nil, "event types to subscribe to (default from WS_SUBSCRIBE)")
	listenCmd.Flags().IntP("count", "n", 0, "exit after this many envelopes")
	rootCmd.AddCommand(listenCmd)
}
