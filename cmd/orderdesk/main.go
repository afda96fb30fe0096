package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"orderdesk/internal"
	"orderdesk/internal/api"
	"orderdesk/internal/config"
	"orderdesk/internal/connectors"
	"orderdesk/internal/listener"
	"orderdesk/internal/metrics"
	"orderdesk/internal/pipeline"
	"orderdesk/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "parse" {
		// parse never touches the database.
		runParse(cfg, os.Args[2:])
		return
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	m := metrics.NewRegistry()
	p, err := pipeline.NewParser(cfg)
	must(err)
	intake := pipeline.NewIntakeService(db, cfg, p, m)

	switch cmd {
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		must(serve(db, cfg, intake, m, *addr))
	case "intake":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "input file path or raw text")
		inType := fs.String("type", "text", "text|eml|html|pdf|xlsx")
		date := fs.String("delivery-date", "", "YYYY-MM-DD, defaults to tomorrow")
		allowUnpriced := fs.Bool("allow-unpriced", cfg.IntakeAllowUnpriced, "store items without a price")
		_ = fs.Parse(os.Args[2:])
		if *input == "" {
			must(fmt.Errorf("--input is required"))
		}
		text, err := pipeline.TextFromInput(*inType, *input)
		must(err)
		_, res, err := intake.ParseAndCommit(text, pipeline.CommitOptions{DeliveryDate: *date, AllowUnpriced: *allowUnpriced})
		must(err)
		for _, r := range res.Rejected {
			fmt.Printf("rejected line %d: %s (%s)\n", r.Number, r.Line, r.Reason)
		}
		fmt.Printf("intake done created=%d rejected=%d newCustomers=%d\n", len(res.Created), len(res.Rejected), res.NewCustomers)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := connectors.New(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(context.Background(), *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d known=%d\n", conn.Name(), result.Fetched, result.Stored, result.Known)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		emailID := fs.Int("id", 0, "stored email id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		processor := pipeline.NewProcessingService(db, intake)
		if *emailID > 0 {
			res, err := processor.ProcessByID(*emailID)
			must(err)
			fmt.Printf("processed email id=%d status=%s created=%d rejected=%d\n", res.EmailID, res.Status, res.Created, res.Rejected)
			return
		}
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(*provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d status=%s created=%d rejected=%d\n", res.EmailID, res.Status, res.Created, res.Rejected)
			return
		}
		results, err := processor.ProcessPending(*batch, *provider)
		must(err)
		created := 0
		for _, r := range results {
			created += r.Created
		}
		fmt.Printf("processed pending emails=%d orders=%d\n", len(results), created)
	case "mail:listen":
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		must(listener.NewService(db, cfg, intake, slog.Default()).Run(ctx))
	case "customers:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *file == "" {
			must(fmt.Errorf("--file is required"))
		}
		blob, err := os.ReadFile(*file)
		must(err)
		imported, err := pipeline.ImportCustomersFromXLSX(db, blob)
		must(err)
		fmt.Printf("imported %d customers\n", len(imported))
	case "customers:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", filepath.Join(cfg.OutputDir, "customers.xlsx"), "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		customers, err := db.ListCustomers()
		must(err)
		must(pipeline.ExportCustomersToXLSX(customers, *out))
		fmt.Printf("exported %d customers to %s\n", len(customers), *out)
	case "orders:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", filepath.Join(cfg.OutputDir, "orders.xlsx"), "output xlsx path")
		customerID := fs.Int("customerId", 0, "only this customer")
		start := fs.String("startDate", "", "YYYY-MM-DD")
		end := fs.String("endDate", "", "YYYY-MM-DD")
		_ = fs.Parse(os.Args[2:])
		filter := internal.OrderFilter{StartDate: *start, EndDate: *end}
		if *customerID != 0 {
			filter.CustomerID = customerID
		}
		rows, err := db.GetOrderExportRows(filter)
		must(err)
		must(pipeline.ExportOrdersToXLSX(rows, *out))
		fmt.Printf("exported %d orders to %s\n", len(rows), *out)
	default:
		usage()
		os.Exit(1)
	}
}

// runParse prints the parse result as JSON, or writes a preview workbook
// when --output ends in .xlsx.
func runParse(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	input := fs.String("input", "", "input file path or raw text")
	inType := fs.String("type", "text", "text|eml|html|pdf|xlsx")
	output := fs.String("output", "", "optional .xlsx or .json output path")
	_ = fs.Parse(args)
	if *input == "" {
		must(fmt.Errorf("--input is required"))
	}

	p, err := pipeline.NewParser(cfg)
	must(err)
	text, err := pipeline.TextFromInput(*inType, *input)
	must(err)
	res, err := p.Parse(text)
	must(err)

	if strings.HasSuffix(strings.ToLower(*output), ".xlsx") {
		must(pipeline.ExportDraftsToXLSX(res, *output))
		fmt.Printf("parse done lines=%d failed=%d output=%s\n", len(res.Lines), len(res.Failed()), *output)
		return
	}

	type line struct {
		Number int    `json:"line"`
		Text   string `json:"text"`
		Draft  any    `json:"draft,omitempty"`
		Error  string `json:"error,omitempty"`
	}
	lines := make([]line, 0, len(res.Lines))
	for _, l := range res.Lines {
		out := line{Number: l.Number, Text: l.Line}
		if l.OK() {
			out.Draft = l.Draft
		} else {
			out.Error = l.Err.Error()
		}
		lines = append(lines, out)
	}
	blob, err := json.MarshalIndent(lines, "", "  ")
	must(err)

	if *output == "" {
		fmt.Println(string(blob))
		return
	}
	must(os.MkdirAll(filepath.Dir(*output), 0o755))
	must(os.WriteFile(*output, blob, 0o644))
	fmt.Printf("parse done lines=%d failed=%d output=%s\n", len(res.Lines), len(res.Failed()), *output)
}

func serve(db *storage.DB, cfg config.Config, intake *pipeline.IntakeService, m *metrics.Registry, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewServer(db, cfg, intake, m, slog.Default()).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func usage() {
	fmt.Println("usage: orderdesk <command>")
	fmt.Println("commands:")
	fmt.Println("  serve [--addr=:3001]")
	fmt.Println("  parse --input=... [--type=text|eml|html|pdf|xlsx] [--output=preview.xlsx|result.json]")
	fmt.Println("  intake --input=... [--type=...] [--delivery-date=YYYY-MM-DD] [--allow-unpriced]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--id=N|--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  customers:import --file=customers.xlsx")
	fmt.Println("  customers:export [--out=./out/customers.xlsx]")
	fmt.Println("  orders:export [--out=./out/orders.xlsx] [--customerId=...] [--startDate=...] [--endDate=...]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
