package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"orderdesk/internal"
	"orderdesk/internal/storage"
)

// MailStoreService keeps raw messages on disk, named by content hash, and
// records them in the emails table.
type MailStoreService struct {
	db         *storage.DB
	rawMailDir string
}

func NewMailStoreService(db *storage.DB, rawMailDir string) *MailStoreService {
	return &MailStoreService{db: db, rawMailDir: rawMailDir}
}

// Store is idempotent per provider and message id. A message that was
// already processed keeps its status.
func (s *MailStoreService) Store(msg internal.FetchedMailMessage) (internal.EmailRow, error) {
	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])

	dir := filepath.Join(s.rawMailDir, msg.Provider)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return internal.EmailRow{}, err
	}

	rawPath := filepath.Join(dir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.EmailRow{}, err
		}
	}

	return s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, internal.EmailFetched)
}
