package connectors

import (
	"context"

	"orderdesk/internal"
	"orderdesk/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStoreService
}

// FetchResult counts messages returned by the provider, newly stored ones
// and ones already known from an earlier fetch.
type FetchResult struct {
	Fetched int
	Stored  int
	Known   int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector) *FetchService {
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		row, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		if row.Status == internal.EmailFetched {
			res.Stored++
		} else {
			res.Known++
		}
	}
	return res, nil
}
