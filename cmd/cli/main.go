package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"heiten-crawler/internal/checkpoint"
	"heiten-crawler/internal/classifier"
	"heiten-crawler/internal/config"
	"heiten-crawler/internal/crawler"
	"heiten-crawler/internal/harvest"
	"heiten-crawler/internal/ioformats"
	"heiten-crawler/internal/parser"
	"heiten-crawler/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "heiten-crawler [begin_page] [end_page]",
	Short: "Collects restaurant closing notices from kaiten-heiten.com into a CSV file.",
	Long: `Walks the search listing from begin_page (default 1). Without end_page the
crawl runs until a page has no records or it reaches the newest record of
the previous run for the same query.`,
	Args:         cobra.MaximumNArgs(2),
	SilenceUsage: true,
	RunE:         run,
}

// signalContext lives until SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()
	return ctx
}

func pageArg(args []string, i, fallback int) (int, error) {
	if len(args) <= i {
		return fallback, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("page number %q: %w", args[i], err)
	}
	return n, nil
}

func configPath() string {
	if p := os.Getenv("HEITEN_CONFIG"); p != "" {
		return p
	}
	return "config.json5"
}

func run(cmd *cobra.Command, args []string) error {
	begin, err := pageArg(args, 0, 1)
	if err != nil {
		return err
	}
	end, err := pageArg(args, 1, -1)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	l := logger.New(cfg.Log.Level)

	schema, err := ioformats.ReadSchema(cfg.SchemaFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := checkpoint.Open(ctx, cfg.CheckpointOptions())
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer store.Close()

	client := crawler.NewHTTPClient(
		config.ParseDuration(cfg.Fetch.Timeout, 15*time.Second),
		config.ParseDuration(cfg.Fetch.DialTimeout, 5*time.Second),
		cfg.Fetch.SizeCap,
		cfg.Fetch.UserAgent,
	)
	policy := cfg.RetryPolicy()
	listingPolicy := policy
	listingPolicy.PoliteDelay = 0

	extractor := parser.New(classifier.New(cfg.ListURL), l)
	walker := crawler.NewWalker(
		crawler.NewRetrier(client, listingPolicy, l),
		crawler.NewDetailFetcher(crawler.NewRetrier(client, policy, l), extractor),
		l,
	)

	out := cfg.OutputPath(time.Now())
	openSink := func(mode ioformats.Mode) (ioformats.Sink, error) {
		l.Infof("writing %s (%s)", out, mode)
		return ioformats.OpenSink(out, cfg.Output.Format, mode, schema)
	}

	d := harvest.New(cfg.ListURL, walker, store, openSink, cfg.PageDelay(), l)
	started := time.Now()
	sum, err := d.Run(ctx, cfg.Query, begin, end)
	printSummary(sum, out, time.Since(started))
	return err
}

func printSummary(sum harvest.Summary, out string, took time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Query", "Pages", "Records", "Stopped", "Output", "Time"})
	t.AppendRow(table.Row{
		sum.Query,
		fmt.Sprintf("%d-%d", sum.FirstPage, sum.LastPage),
		sum.Written,
		sum.Reason,
		out,
		took.Round(time.Second),
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func main() {
	if err := rootCmd.ExecuteContext(signalContext()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
