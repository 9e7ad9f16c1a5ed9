// Package main is the entry point for archivectl, which lists and exports
// archived access and audit records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onnwee/portal/internal/archive"
	"github.com/onnwee/portal/internal/config"
	"github.com/onnwee/portal/internal/retention"
)

const usage = `Portal Archive CLI

Usage: archivectl [options] <command> [command options]

Commands:
  list    list object keys for one record type and day
  export  export the records of a day range as CSV or JSON
  url     print a presigned download URL for one object

Options:
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stdout carries command output.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		slog.Error("archivectl failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("archivectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to an optional YAML config file")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	reader, err := retention.NewReader(cfg.ArchiveConfig())
	if err != nil {
		return err
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list":
		return runList(ctx, reader, rest, stdout, stderr)
	case "export":
		return runExport(ctx, reader, rest, stdout, stderr)
	case "url":
		return runURL(ctx, reader, rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return errUsage
	}
}

func runList(ctx context.Context, reader *retention.Reader, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	recordType := fs.String("type", string(archive.TypeAudit), "record type: access or audit")
	day := fs.String("day", time.Now().UTC().Format(retention.DayFormat), "day to list (YYYY-MM-DD, UTC)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := parseType(*recordType)
	if err != nil {
		return err
	}
	d, err := time.Parse(retention.DayFormat, *day)
	if err != nil {
		return fmt.Errorf("invalid -day %q: %w", *day, err)
	}

	keys, err := reader.ListKeys(ctx, t, d)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Fprintln(stdout, key)
	}
	return nil
}

func runExport(ctx context.Context, reader *retention.Reader, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	recordType := fs.String("type", string(archive.TypeAudit), "record type: access or audit")
	today := time.Now().UTC().Format(retention.DayFormat)
	from := fs.String("from", today, "first day (YYYY-MM-DD, UTC)")
	to := fs.String("to", "", "last day, inclusive (defaults to -from)")
	format := fs.String("format", string(retention.ExportFormatCSV), "output format: csv or json")
	actor := fs.String("actor", "", "only records by this actor ID")
	limit := fs.Int("limit", 0, "maximum number of records (0 = no limit)")
	anonymizeAfter := fs.Duration("anonymize-after", retention.DefaultAnonymizeAfter,
		"truncate IP addresses of records older than this (0 keeps every address)")
	out := fs.String("out", "", "write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := parseType(*recordType)
	if err != nil {
		return err
	}
	if *to == "" {
		*to = *from
	}
	fromDay, err := time.Parse(retention.DayFormat, *from)
	if err != nil {
		return fmt.Errorf("invalid -from %q: %w", *from, err)
	}
	toDay, err := time.Parse(retention.DayFormat, *to)
	if err != nil {
		return fmt.Errorf("invalid -to %q: %w", *to, err)
	}

	recs, err := reader.Collect(ctx, t, fromDay, toDay)
	if err != nil {
		return err
	}

	opts := retention.ExportOptions{
		Format:  retention.ExportFormat(*format),
		ActorID: *actor,
		Limit:   *limit,
	}
	if *anonymizeAfter > 0 {
		opts.AnonymizeBefore = retention.AnonymizeCutoff(time.Now(), *anonymizeAfter)
	}
	data, err := retention.ExportRecords(recs, opts)
	if err != nil {
		return err
	}

	if *out == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", *out, err)
	}
	slog.Info("export written", "path", *out, "records", len(recs), "type", t)
	return nil
}

func runURL(ctx context.Context, reader *retention.Reader, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("url", flag.ContinueOnError)
	fs.SetOutput(stderr)
	key := fs.String("key", "", "object key (required)")
	expires := fs.Duration("expires", retention.DefaultURLExpiry, "URL lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		fmt.Fprintln(stderr, "-key is required")
		return errUsage
	}

	u, err := reader.PresignGet(ctx, *key, *expires)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, u)
	return nil
}

func parseType(s string) (archive.RecordType, error) {
	switch t := archive.RecordType(s); t {
	case archive.TypeAccess, archive.TypeAudit:
		return t, nil
	default:
		return "", fmt.Errorf("invalid -type %q: must be access or audit", s)
	}
}
