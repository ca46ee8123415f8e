package analytics

import (
	"context"
	"sort"
	"time"

	"queue-warden/internal/storage"
)

type Store interface {
	ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error)
	TopScreensharers(ctx context.Context, limit int) ([]storage.Screensharer, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

type Report struct {
	Since   time.Time
	Total   int
	ByLevel map[string]int
	ByEvent map[string]int
}

// EventCount is one row of a report sorted for display.
type EventCount struct {
	Event string
	Count int
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{Since: since, ByLevel: make(map[string]int), ByEvent: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
		report.ByEvent[log.Event]++
	}
	return report, nil
}

// Events returns event counts, most frequent first.
func (r Report) Events() []EventCount {
	counts := make([]EventCount, 0, len(r.ByEvent))
	for event, count := range r.ByEvent {
		counts = append(counts, EventCount{Event: event, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Event < counts[j].Event
	})
	return counts
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]storage.Screensharer, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.TopScreensharers(ctx, limit)
}
