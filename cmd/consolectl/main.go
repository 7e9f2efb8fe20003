package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/agent-console/cmd/mainconfig"
	"github.com/wolfman30/agent-console/internal/aggregation"
	appconfig "github.com/wolfman30/agent-console/internal/config"
	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/events"
	"github.com/wolfman30/agent-console/internal/feed"
	"github.com/wolfman30/agent-console/internal/suggestions"
	"github.com/wolfman30/agent-console/pkg/logging"
)

// FeedDocumentEvent tags feed documents published to the suggestion queue.
const FeedDocumentEvent = "feed.document.v1"

// DocumentSender publishes one serialized feed document.
type DocumentSender interface {
	Send(ctx context.Context, eventType, body string) error
}

// SenderFactory builds the queue client for publish.
type SenderFactory func(ctx context.Context, cfg *appconfig.Config, queueURL string) (DocumentSender, error)

// DefaultSenderFactory publishes to SQS using the shared AWS wiring.
func DefaultSenderFactory(ctx context.Context, cfg *appconfig.Config, queueURL string) (DocumentSender, error) {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return events.NewSQSQueue(mainconfig.NewSQSClient(awsCfg, cfg), queueURL), nil
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(os.Stdout, DefaultSenderFactory).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer, senders SenderFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "consolectl",
		Short:         "Inspect and publish agent console feed documents",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.AddCommand(newValidateCmd(), newViewsCmd(), newPublishCmd(senders))
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a JSON or YAML feed document without applying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := feed.LoadFile(args[0])
			if err != nil {
				return err
			}
			if err := doc.Validate(nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d conversations, %d suggestions\n",
				len(doc.Conversations), doc.Suggestions.Count())
			return nil
		},
	}
}

func newViewsCmd() *cobra.Command {
	var (
		view     string
		priority string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "views <file>",
		Short: "Render the aggregated suggestion views of a feed document",
		Long: `Seed an in-memory console from a feed document and print one view.

Views:
  flat             every pending suggestion, highest priority first (default)
  individual       suggestions not absorbed by a batch group
  batches          suggestions shared by several contacts
  by-conversation  the flat view bucketed per conversation`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			var p *suggestions.Priority
			if priority != "" {
				parsed, err := suggestions.ParsePriority(priority)
				if err != nil {
					return err
				}
				p = &parsed
			}

			registry := conversations.NewInMemoryRegistry()
			store := suggestions.NewInMemoryStore()
			if _, err := feed.NewFeeder(registry, store, logging.New("error")).ApplyFile(ctx, args[0]); err != nil {
				return err
			}
			projector := aggregation.NewProjector(store, registry)
			return renderView(ctx, cmd.OutOrStdout(), projector, view, p, asJSON)
		},
	}
	cmd.Flags().StringVarP(&view, "view", "v", "flat", "flat, individual, batches or by-conversation")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "only HIGH, MEDIUM or LOW")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newPublishCmd(senders SenderFactory) *cobra.Command {
	var queueURL string
	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Validate a feed document and send it to the suggestion queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg := appconfig.Load()
			if queueURL == "" {
				queueURL = cfg.SuggestionQueueURL
			}
			if queueURL == "" {
				return fmt.Errorf("no queue: pass --queue-url or set SUGGESTION_QUEUE_URL")
			}

			doc, err := feed.LoadFile(args[0])
			if err != nil {
				return err
			}
			if err := doc.Validate(nil); err != nil {
				return err
			}
			body, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode document: %w", err)
			}

			sender, err := senders(ctx, cfg, queueURL)
			if err != nil {
				return err
			}
			if err := sender.Send(ctx, FeedDocumentEvent, string(body)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d suggestions to %s\n", doc.Suggestions.Count(), queueURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&queueURL, "queue-url", "", "SQS queue url (defaults to SUGGESTION_QUEUE_URL)")
	return cmd
}

func renderView(ctx context.Context, out io.Writer, p *aggregation.Projector, view string, priority *suggestions.Priority, asJSON bool) error {
	var (
		data any
		rows [][]string
	)
	switch strings.ToLower(view) {
	case "", "flat", "individual":
		var items []aggregation.FlatSuggestion
		var err error
		if strings.ToLower(view) == "individual" {
			items, err = p.Individual(ctx, priority)
		} else {
			items, err = p.FlattenAll(ctx, priority)
		}
		if err != nil {
			return err
		}
		data = items
		rows = append(rows, []string{"PRIORITY", "CONTACT", "KIND", "TITLE", "ID"})
		for _, it := range items {
			rows = append(rows, []string{string(it.Suggestion.Priority), it.ContactName, string(it.Suggestion.Kind), it.Suggestion.Title, it.Suggestion.ID})
		}
	case "batches":
		groups, err := p.GroupBatchable(ctx)
		if err != nil {
			return err
		}
		data = groups
		rows = append(rows, []string{"KEY", "CONTACTS", "DIVERGENT"})
		for _, g := range groups {
			rows = append(rows, []string{g.Key, fmt.Sprint(g.ContactCount()), fmt.Sprint(g.DivergentPayload)})
		}
	case "by-conversation":
		buckets, err := p.ByConversation(ctx, priority)
		if err != nil {
			return err
		}
		data = buckets
		rows = append(rows, []string{"CONVERSATION", "CONTACT", "PENDING"})
		for _, b := range buckets {
			rows = append(rows, []string{b.ConversationID, b.ContactName, fmt.Sprint(len(b.Suggestions))})
		}
	default:
		return fmt.Errorf("unknown view %q", view)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
