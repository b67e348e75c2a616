package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"activityaudit/pkg/app"
	"activityaudit/pkg/config"
	"activityaudit/pkg/render"
	gos3 "activityaudit/pkg/s3"
	"activityaudit/pkg/telemetry"
	"activityaudit/services/audit"
	"activityaudit/services/auditctl"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	token   string
	jsonOut bool
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "auditctl",
		Short:         "Inspect and maintain the activity audit trail",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.token, "token", os.Getenv("ADMIN_TOKEN"), "Admin token or JWT (defaults to $ADMIN_TOKEN)")
	cmd.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "Print JSON instead of text")

	cmd.AddCommand(newStatsCommand(g))
	cmd.AddCommand(newListCommand(g))
	cmd.AddCommand(newPurgeCommand(g))
	cmd.AddCommand(newExportCommand(g))
	cmd.AddCommand(newTokenCommand())
	return cmd
}

// session opens the configured store and authorizes the operator.
type session struct {
	deps *app.Deps
	id   audit.AdminIdentity
	g    *globals
}

func openSession(ctx context.Context, g *globals) (*session, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := telemetry.NewLogger("auditctl", "warn", "console", os.Stderr)
	if err != nil {
		return nil, err
	}
	deps, err := app.Build(ctx, cfg, logger, app.WithName("auditctl"), app.WithoutSeed())
	if err != nil {
		return nil, err
	}
	id, err := deps.Gate.Authorize(ctx, g.token)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	return &session{deps: deps, id: id, g: g}, nil
}

func (s *session) Close() error { return s.deps.Close() }

func (s *session) print(w io.Writer, tmpl string, view, raw any) error {
	if s.g.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(raw)
	}
	engine, err := render.New()
	if err != nil {
		return err
	}
	return engine.Render(w, tmpl, view)
}

func withSession(g *globals, fn func(context.Context, *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		s, err := openSession(ctx, g)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(ctx, s)
	}
}

func newStatsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record totals per action",
		RunE: withSession(g, func(ctx context.Context, s *session) error {
			stats, err := s.deps.Query.Stats(ctx, s.id)
			if err != nil {
				return err
			}
			return s.print(os.Stdout, "stats.tmpl", auditctl.NewStatsView(stats), stats)
		}),
	}
}

func newListCommand(g *globals) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit records, newest first",
		RunE: withSession(g, func(ctx context.Context, s *session) error {
			page, err := s.deps.Query.List(ctx, s.id, limit, offset)
			if err != nil {
				return err
			}
			return s.print(os.Stdout, "list.tmpl", auditctl.ListView{Page: page, Offset: offset}, page)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", audit.DefaultPageSize, "Maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of records to skip")
	return cmd
}

func newPurgeCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete records older than the retention window",
		RunE: withSession(g, func(ctx context.Context, s *session) error {
			res, err := s.deps.Sweeper.Sweep(ctx)
			if err != nil {
				return err
			}
			return s.print(os.Stdout, "purge.tmpl", auditctl.PurgeView{Deleted: res.Deleted, Cutoff: res.Cutoff}, res)
		}),
	}
}

func newExportCommand(g *globals) *cobra.Command {
	var (
		output   string
		compress bool
		upload   bool
		bucket   string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full trail as CSV to a file, stdout or S3",
	}
	cmd.RunE = withSession(g, func(ctx context.Context, s *session) error {
		dest := auditctl.Destination{
			Output:    output,
			Upload:    upload,
			Bucket:    bucket,
			BucketSet: cmd.Flags().Changed("bucket"),
		}
		target, err := dest.ResolveBucket(s.deps.Config.S3Bucket)
		if err != nil {
			return err
		}

		if target != "" {
			opts, err := gos3.OptionsFromEnv()
			if err != nil {
				return err
			}
			client, err := gos3.NewClient(ctx, opts)
			if err != nil {
				return fmt.Errorf("s3 client: %w", err)
			}
			up, err := auditctl.UploadExport(ctx, s.deps.Query, client, s.id, auditctl.UploadConfig{
				Bucket:     target,
				Compress:   compress,
				PresignTTL: ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "uploaded %d record(s) to s3://%s/%s (sha256 %s)\n", up.Rows, target, up.Key, up.SHA256)
			fmt.Fprintln(os.Stdout, up.URL)
			return nil
		}

		var w io.Writer = os.Stdout
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		res, err := auditctl.WriteExport(ctx, s.deps.Query, s.id, w, compress)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "exported %d record(s), %d bytes, sha256 %s\n", res.Rows, res.Bytes, res.SHA256)
		return nil
	})
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default stdout)")
	cmd.Flags().BoolVar(&compress, "compress", false, "Compress the export with zstd")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload to S3 ($S3_BUCKET unless --bucket is given) and print a download URL")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Upload to this S3 bucket")
	cmd.Flags().DurationVar(&ttl, "url-ttl", 15*time.Minute, "Lifetime of the presigned download URL")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin JWT signed with $ADMIN_JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := audit.IssueAdminToken(os.Getenv("ADMIN_JWT_SECRET"), subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Operator identity recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
