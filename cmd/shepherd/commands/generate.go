package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/Shepherd/backend/internal/generation"
	"github.com/GriffinCanCode/Shepherd/backend/internal/transport/httpclient"
)

var generateCmd = &cobra.Command{
	Use:   "generate <topic...>",
	Short: "Stream one piece of generated content",
	Long: `Start a generation session for the topic and print the accepted content
as JSON. Progress goes to stderr.

Examples:
  shepherd generate -t st-mark --kind sermon "the good shepherd"
  shepherd generate --kind announcement --asset --asset-out flyer.png "harvest supper"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Realtime.Token == "" {
			return fmt.Errorf("token is required, use --token or AUTH_TOKEN")
		}
		gc := generatorConfig(cmd)
		timeout, _ := cmd.Flags().GetDuration("timeout")
		raw, _ := cmd.Flags().GetBool("raw")
		assetOut, _ := cmd.Flags().GetString("asset-out")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return generate(ctx, cmd, strings.Join(args, " "), gc, raw, assetOut)
	},
}

func generatorConfig(cmd *cobra.Command) generation.GeneratorConfig {
	g := cfg.Generation
	gc := generation.GeneratorConfig{
		ContentKind:   g.ContentKind,
		Model:         g.Model,
		GenerateAsset: g.GenerateAsset,
		AssetStyle:    g.AssetStyle,
		AssetWidth:    g.AssetWidth,
		AssetHeight:   g.AssetHeight,
		SanitizeHTML:  g.SanitizeHTML,
	}
	flags := cmd.Flags()
	if flags.Changed("kind") {
		gc.ContentKind, _ = flags.GetString("kind")
	}
	if flags.Changed("model") {
		gc.Model, _ = flags.GetString("model")
	}
	if flags.Changed("language") {
		gc.Language, _ = flags.GetString("language")
	}
	if flags.Changed("asset") {
		gc.GenerateAsset, _ = flags.GetBool("asset")
	}
	if flags.Changed("style") {
		gc.AssetStyle, _ = flags.GetString("style")
	}
	return gc
}

func generate(ctx context.Context, cmd *cobra.Command, topic string, gc generation.GeneratorConfig, raw bool, assetOut string) error {
	client := httpclient.New(httpclient.Config{
		ResponseHeaderTimeout: cfg.HTTP.ConnectTimeout,
		RetryMax:              cfg.HTTP.RetryMax,
		RequestsPerSecond:     cfg.HTTP.RequestsPerSecond,
		BreakerFailures:       cfg.HTTP.BreakerFailures,
		BreakerTimeout:        cfg.HTTP.BreakerTimeout,
	}, logger.Component("http"))

	conn := generation.Config{
		APIBaseURL: cfg.Generation.APIBaseURL,
		Token:      cfg.Realtime.Token,
		TenantID:   cfg.Realtime.TenantID,
	}
	g := generation.NewGenerator(client, conn, gc, logger.Component("cli"),
		generation.WithOnStateChange(func(from, to generation.State) {
			printVerbose("state: %s -> %s", from, to)
		}),
		generation.WithOnChunk(func(s generation.Snapshot) {
			fmt.Fprintf(os.Stderr, "\rreceived %d chunks", s.ChunkCount)
		}),
	)

	printVerbose("generating %s for %q", gc.ContentKind, topic)
	s := g.Generate(ctx, topic)
	snap, err := s.Wait(ctx)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		g.Cancel()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("generation timed out")
		case errors.Is(err, context.Canceled):
			return nil
		}
		return err
	}
	if snap.State == generation.Error {
		return snap.LastError
	}
	if snap.AssetError != "" {
		fmt.Fprintf(os.Stderr, "asset failed: %s\n", snap.AssetError)
	}

	if raw {
		fmt.Fprintln(cmd.OutOrStdout(), snap.RawText)
		g.Reject()
		return nil
	}

	res, err := g.Accept()
	if err != nil {
		return err
	}
	out, err := sonic.ConfigStd.MarshalIndent(res.Content, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if res.Asset != nil {
		return saveAsset(res.Asset, assetOut)
	}
	return nil
}

func saveAsset(a *generation.Asset, path string) error {
	switch {
	case !a.Inline():
		fmt.Fprintf(os.Stderr, "asset: %s\n", a.URL)
	case path == "":
		fmt.Fprintf(os.Stderr, "asset: %s, %d bytes (use --asset-out to save)\n", a.MIMEType, len(a.Bytes))
	default:
		if err := os.WriteFile(path, a.Bytes, 0o644); err != nil {
			return fmt.Errorf("write asset: %w", err)
		}
		fmt.Fprintf(os.Stderr, "asset saved to %s (%s)\n", path, a.MIMEType)
	}
	return nil
}

func init() {
	generateCmd.Flags().String("kind", "", "content kind (default from GEN_CONTENT_KIND)")
	generateCmd.Flags().String("model", "", "model name")
	generateCmd.Flags().String("language", "", "output language")
	generateCmd.Flags().Bool("asset", false, "also generate an image")
	generateCmd.Flags().String("style", "", "image style")
	generateCmd.Flags().String("asset-out", "", "write an inline asset to this file")
	generateCmd.Flags().Bool("raw", false, "print the raw streamed text and discard the result")
	generateCmd.Flags().Duration("timeout", 3*time.Minute, "give up after this long")
	rootCmd.AddCommand(generateCmd)
}
