// Package main provides the CLI tool for the itemgen-service.
// It runs the same pipeline as the server without HTTP in between.
//
// Run with: go run ./cmd/cli generate --topic "kahvaltı" --count 8
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/app"
	"github.com/fleveque/itemgen-service/internal/config"
	"github.com/fleveque/itemgen-service/internal/model"
	"github.com/fleveque/itemgen-service/internal/policy"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootCmd builds the command tree:
// itemgen-cli generate --topic kahvaltı
// itemgen-cli resolve --query "menemen" --name Menemen
// itemgen-cli policy
func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "itemgen-cli",
		Short: "Item generation service CLI tools",
	}

	root.AddCommand(generateCmd(), resolveCmd(), policyCmd())
	return root
}

func generateCmd() *cobra.Command {
	var req model.GenerationRequest

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate items for a topic and print the response envelope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				resp, err := a.Generate.Generate(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}

	cmd.Flags().StringVar(&req.Topic, "topic", "", "Topic to generate items for")
	cmd.Flags().IntVar(&req.Count, "count", 0, "Number of items (0 uses generation.default_count)")
	cmd.Flags().StringVar(&req.CustomPrompt, "prompt", "", "Extra instruction appended to the prompt")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func resolveCmd() *cobra.Command {
	var query, name string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Search one query and show which resolver tier accepts an image",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = query
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				items, err := a.Search.Search(ctx, query, a.Config.Search.MaxResults)
				if err != nil {
					return fmt.Errorf("searching %q: %w", query, err)
				}
				res, ok := a.Resolver.Resolve(ctx, name, items)
				if !ok {
					return fmt.Errorf("no image accepted for %q across %d results", query, len(items))
				}
				return printJSON(cmd, map[string]any{
					"query":   query,
					"results": len(items),
					"tier":    res.Tier,
					"url":     res.URL,
					"trusted": res.Trusted(),
				})
			})
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "Image search query")
	cmd.Flags().StringVar(&name, "name", "", "Item name used in logs (defaults to query)")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func policyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective domain policy as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("ITEMGEN_CONFIG_PATH"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			pol, err := policy.Load(cfg.Policy.Path)
			if err != nil {
				return fmt.Errorf("loading domain policy: %w", err)
			}
			out, err := pol.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// withApp loads config, builds the pipeline and cancels it on Ctrl+C.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(os.Getenv("ITEMGEN_CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Always development mode for the CLI
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
