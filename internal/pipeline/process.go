package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"orderdesk/internal"
	"orderdesk/internal/parser"
	"orderdesk/internal/storage"
	"orderdesk/internal/util"
)

// ProcessingService runs stored mail through detection and order intake.
type ProcessingService struct {
	db     *storage.DB
	intake *IntakeService
}

func NewProcessingService(db *storage.DB, intake *IntakeService) *ProcessingService {
	return &ProcessingService{db: db, intake: intake}
}

type ProcessResult struct {
	EmailID  int
	Status   string
	Created  int
	Rejected int
}

func (s *ProcessingService) ProcessByProviderMessageID(provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(email)
}

// ProcessByID reprocesses a stored email by its row id.
func (s *ProcessingService) ProcessByID(id int) (ProcessResult, error) {
	email, err := s.db.GetEmailByID(id)
	if err != nil {
		return ProcessResult{}, err
	}
	if email == nil {
		return ProcessResult{}, fmt.Errorf("email not found: id=%d", id)
	}
	return s.ProcessEmail(*email)
}

// ProcessPending processes up to limit fetched emails, optionally only
// those from one provider.
func (s *ProcessingService) ProcessPending(limit int, provider string) ([]ProcessResult, error) {
	pending, err := s.db.ListEmailsByStatus(internal.EmailFetched, limit)
	if err != nil {
		return nil, err
	}
	results := []ProcessResult{}
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(email)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ProcessEmail is safe to repeat: orders from an earlier run of the same
// email are replaced in the same transaction that stores the new ones.
func (s *ProcessingService) ProcessEmail(email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}

	content, err := ExtractOrderTextFromEmail(raw)
	if err != nil {
		return ProcessResult{}, err
	}

	emailID := email.ID
	detect := DetectOrderText(util.FirstNonEmpty(content.Subject, email.Subject), content.Text)
	if !detect.IsOrder {
		return s.finishEmpty(email.ID, internal.EmailSkipped, start)
	}

	_, committed, err := s.intake.ParseAndCommit(content.Text, CommitOptions{
		AllowUnpriced:      s.intake.cfg.IntakeAllowUnpriced,
		EmailID:            &emailID,
		ReplaceEmailOrders: true,
	})
	if errors.Is(err, parser.ErrMissingDelimiter) {
		return s.finishEmpty(email.ID, internal.EmailFailed, start)
	}
	if err != nil {
		return ProcessResult{}, err
	}

	res, err := s.finish(email.ID, internal.EmailProcessed, start, nil)
	if err != nil {
		return res, err
	}
	res.Created = len(committed.Created)
	res.Rejected = len(committed.Rejected)
	return res, nil
}

// finishEmpty ends a run that stored no orders, dropping any the mail
// produced before.
func (s *ProcessingService) finishEmpty(emailID int, status string, start time.Time) (ProcessResult, error) {
	if err := s.db.ClearEmailOrders(emailID); err != nil {
		return ProcessResult{}, err
	}
	return s.finish(emailID, status, start, map[string]int{"created": 0, "rejected": 0})
}

// finish sets the final status. counts, when non-nil, is recorded as a run;
// committed mail already has its run from ParseAndCommit.
func (s *ProcessingService) finish(emailID int, status string, start time.Time, counts map[string]int) (ProcessResult, error) {
	if err := s.db.UpdateEmailStatus(emailID, status); err != nil {
		return ProcessResult{}, err
	}
	s.intake.metrics.MailsProcessed.WithLabelValues(status).Inc()
	if counts != nil {
		_ = s.db.InsertRun(traceID(), &emailID, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, counts)
	}
	return ProcessResult{EmailID: emailID, Status: status}, nil
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
