package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"orderdesk/internal"
	"orderdesk/internal/config"
	"orderdesk/internal/connectors"
	"orderdesk/internal/pipeline"
	"orderdesk/internal/storage"
)

// Service polls the mailbox, turns order mail into stored orders and
// optionally writes one spreadsheet per processed mail.
type Service struct {
	db     *storage.DB
	cfg    config.Config
	intake *pipeline.IntakeService
	logger *slog.Logger

	connect func(provider string) (connectors.MailConnector, error)
}

func NewService(db *storage.DB, cfg config.Config, intake *pipeline.IntakeService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{db: db, cfg: cfg, intake: intake, logger: logger}
	s.connect = func(provider string) (connectors.MailConnector, error) {
		return connectors.New(cfg, provider)
	}
	return s
}

// Run repeats cycles until ctx is done. A failed cycle is logged and the
// next one runs on schedule.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info("mail listener started", "provider", s.cfg.MailListenerProvider, "interval", interval)

	for {
		if err := s.RunCycle(ctx); err != nil {
			s.logger.Error("listener cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("mail listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	conn, err := s.connect(provider)
	if err != nil {
		return err
	}

	fetch := connectors.NewFetchService(s.db, s.cfg.RawMailDir, conn)
	fetched, err := fetch.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	processor := pipeline.NewProcessingService(s.db, s.intake)
	results, err := processor.ProcessPending(s.cfg.MailListenerProcessBatch, conn.Name())
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}

	created := 0
	for _, r := range results {
		created += r.Created
	}

	exported := 0
	if s.cfg.MailListenerAutoExport {
		if exported, err = s.exportProcessed(conn.Name()); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	s.logger.Info("listener cycle done",
		"provider", conn.Name(),
		"fetched", fetched.Fetched,
		"stored", fetched.Stored,
		"processed", len(results),
		"orders", created,
		"exported", exported,
	)
	return nil
}

// exportProcessed writes the orders of each processed mail to
// OUTPUT_DIR/listener and marks the mail exported. Mail without orders
// keeps its processed status.
func (s *Service) exportProcessed(provider string) (int, error) {
	emails, err := s.db.ListEmailsByStatus(internal.EmailProcessed, 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != provider {
			continue
		}
		orders, err := s.db.ListOrdersByEmail(email.ID)
		if err != nil {
			return exported, err
		}
		if len(orders) == 0 {
			continue
		}

		rows, err := s.exportRows(orders)
		if err != nil {
			return exported, err
		}
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", fmt.Sprintf("%d_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID)))
		if err := pipeline.ExportOrdersToXLSX(rows, outputPath); err != nil {
			return exported, err
		}
		if err := s.db.UpdateEmailStatus(email.ID, internal.EmailExported); err != nil {
			return exported, err
		}
		s.logger.Debug("exported mail orders", "emailId", email.ID, "orders", len(rows), "path", outputPath)
		exported++
	}
	return exported, nil
}

func (s *Service) exportRows(orders []internal.OrderRecord) ([]internal.OrderExportRow, error) {
	rows := make([]internal.OrderExportRow, 0, len(orders))
	for _, o := range orders {
		row := internal.OrderExportRow{OrderRecord: o}
		c, err := s.db.GetCustomer(o.CustomerID)
		if err != nil {
			return nil, err
		}
		if c != nil {
			row.CustomerAddress = c.Address
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
