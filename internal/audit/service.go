package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/assettrack/assettrack/internal/shared"
)

// Recorder appends entries to the trail. Record never fails the caller.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// FailureObserver counts audit writes that did not persist.
type FailureObserver interface {
	AuditWriteFailed(action string)
}

// Service coordinates the audit trail.
type Service struct {
	repo      Repository
	logger    *slog.Logger
	observer  FailureObserver
	listLimit int
}

// NewService builds a Service. listLimit caps listing size.
func NewService(repo Repository, logger *slog.Logger, observer FailureObserver, listLimit int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if listLimit <= 0 {
		listLimit = 200
	}
	return &Service{repo: repo, logger: logger, observer: observer, listLimit: listLimit}
}

// Record writes the entry. Failures are logged and counted, never returned, so
// the primary operation is unaffected.
func (s *Service) Record(ctx context.Context, entry Entry) {
	if entry.Action == "" || entry.Details == "" {
		s.logger.Warn("audit entry rejected", slog.String("action", entry.Action))
		s.observe(entry.Action)
		return
	}
	// The request may already be cancelled once the primary write committed.
	if err := s.repo.Insert(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("audit write failed",
			slog.String("action", entry.Action),
			slog.String("role", entry.Role),
			slog.Any("error", err))
		s.observe(entry.Action)
	}
}

// List returns the newest entries, capped at the configured limit.
func (s *Service) List(ctx context.Context, filters Filters) ([]Entry, error) {
	w := shared.NewWindow(filters.Limit, filters.Offset, s.listLimit, s.listLimit)
	filters.Limit, filters.Offset = w.Limit, w.Offset
	return s.repo.List(ctx, filters)
}

// Export returns up to the configured limit of entries for download.
func (s *Service) Export(ctx context.Context, filters Filters) ([]byte, error) {
	entries, err := s.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	return WriteCSV(entries)
}

// Clear empties the trail and then records who cleared it.
func (s *Service) Clear(ctx context.Context, actor shared.Principal) (int64, error) {
	removed, err := s.repo.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit: clear: %w", err)
	}
	s.Record(ctx, NewEntry(actor, ActionClearAudit, fmt.Sprintf("Cleared %d entries", removed)))
	return removed, nil
}

func (s *Service) observe(action string) {
	if s.observer != nil {
		s.observer.AuditWriteFailed(action)
	}
}

var _ Recorder = (*Service)(nil)
