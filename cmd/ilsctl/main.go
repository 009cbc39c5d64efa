// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// LeaseHub ingestion operator tool.
//
// Usage:
//
//	ilsctl classify message.eml [more.eml ...]
//	ilsctl providers
//	ilsctl hash '{"text":"hello"}'
//	ilsctl replay --max 100
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/leasehub/ingestion/internal/config"
	"github.com/leasehub/ingestion/internal/hashutil"
	"github.com/leasehub/ingestion/internal/mailparse"
	"github.com/leasehub/ingestion/internal/models"
	"github.com/leasehub/ingestion/internal/provider"
	"github.com/leasehub/ingestion/internal/qualification"
	"github.com/leasehub/ingestion/internal/queue"
)

var cfgFile string

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	rootCmd := &cobra.Command{
		Use:   "ilsctl",
		Short: "Operator tool for the LeaseHub ingestion service",
		Long: `ilsctl inspects how inbound ILS emails are classified, computes
loop guard checksums and replays dead-lettered jobs.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH)")

	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(hashCmd())
	rootCmd.AddCommand(replayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify FILE...",
		Short: "Classify saved emails against the ILS providers",
		Long:  "Parse each file (raw RFC 822, or gateway JSON when the name ends in .json) and print the provider and lead it yields.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := provider.Default()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, path := range args {
				res, err := classifyFile(cmd.Context(), registry, path)
				if err != nil {
					return err
				}
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the registered ILS providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, p := range provider.Default().Providers() {
				pol := p.Policy()
				fmt.Fprintf(out, "%-28s recipients=%s senders=%s\n",
					p.Name(), patterns(pol.EmailsToProcess...), patterns(pol.ILSSenderPatterns...))
			}
			return nil
		},
	}
}

func hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [JSON]",
		Short: "Print the loop guard checksum of a JSON payload",
		Long:  "Compute the checksum the loop guard stores for a request body. Reads stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 1 {
				data = []byte(args[0])
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				data = b
			}
			sum, err := payloadHash(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}

func replayCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Move dead-lettered jobs back onto the inbound queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			defer rdb.Close()

			consumer := queue.NewConsumer(rdb, cfg.JobsQueue, cfg.DeadLetterQueue)
			n, err := consumer.ReplayDeadLetters(cmd.Context(), limit)
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d job(s)\n", n)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "max", 100, "Maximum number of jobs to replay")

	return cmd
}

// classification is what classify prints per file.
type classification struct {
	File          string                        `json:"file"`
	MessageID     string                        `json:"messageId,omitempty"`
	From          string                        `json:"from"`
	OnILSDomain   bool                          `json:"onIlsDomain"`
	Provider      string                        `json:"provider,omitempty"`
	Parsed        bool                          `json:"parsed"`
	Lead          *models.ParsedLeadInformation `json:"lead,omitempty"`
	Qualification *models.Qualification         `json:"qualification,omitempty"`
}

func classifyFile(ctx context.Context, registry *provider.Registry, path string) (*classification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var msg *models.InboundMessage
	if strings.EqualFold(filepath.Ext(path), ".json") {
		msg, err = mailparse.FromJSON(data)
	} else {
		msg, err = mailparse.ParseMIME(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return classify(ctx, registry, path, msg), nil
}

func classify(ctx context.Context, registry *provider.Registry, name string, msg *models.InboundMessage) *classification {
	res := &classification{
		File:        name,
		MessageID:   msg.MessageID,
		From:        msg.From,
		OnILSDomain: registry.IsOnILSDomain(msg),
	}
	lead, providerName, ok := registry.Parse(msg)
	if !ok {
		return res
	}
	res.Provider = providerName
	res.Parsed = lead.IsSuccessfullyParsed()
	res.Lead = &lead
	if q := qualification.Map(ctx, lead.AdditionalFields.QualificationQuestions); !q.IsEmpty() {
		res.Qualification = &q
	}
	return res
}

// payloadHash decodes data as JSON and hashes its canonical form.
func payloadHash(data []byte) (string, error) {
	var v any
	if err := json.Unmarshal(bytes.TrimSpace(data), &v); err != nil {
		return "", fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return hashutil.ObjectHash(v)
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

func patterns[T fmt.Stringer](res ...T) string {
	parts := make([]string, len(res))
	for i, re := range res {
		parts[i] = re.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
