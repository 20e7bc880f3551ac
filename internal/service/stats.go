package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusevents/ticketing/internal/model"
	"github.com/campusevents/ticketing/internal/repository"
)

// RecentRegistrationsLimit caps recent_registrations on the dashboard.
const RecentRegistrationsLimit = 10

// StatsService computes the organizer dashboard.  It only reads.
type StatsService struct {
	events *repository.EventRepo
	regs   *repository.RegistrationRepo
	logger *slog.Logger
	Now    func() time.Time
}

func NewStatsService(events *repository.EventRepo, regs *repository.RegistrationRepo, logger *slog.Logger) *StatsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsService{events: events, regs: regs, logger: logger, Now: time.Now}
}

// GetStats summarizes every event organized by organizerID.  Revenue sums
// price times registered count over paid events and is rendered with two
// decimals.  An organizer without events gets zeroed stats.
func (s *StatsService) GetStats(ctx context.Context, organizerID string) (*model.Stats, error) {
	events, err := s.events.ListByOrganizer(ctx, organizerID)
	if err != nil {
		s.logger.Error("stats: list events failed", "error", err, "organizer_id", organizerID)
		return nil, ErrStorage
	}

	now := s.Now().UTC()
	stats := &model.Stats{}
	revenue := decimal.Zero
	for _, ev := range events {
		stats.TotalEvents++
		if ev.Status == model.EventStatusPublished {
			stats.PublishedEvents++
		}
		if ev.EventStarts.After(now) {
			stats.UpcomingEvents++
		}
		stats.TotalRegistrations += ev.RegisteredCount
		if ev.IsPaid {
			revenue = revenue.Add(ev.Price.Mul(decimal.NewFromInt(int64(ev.RegisteredCount))))
		}
	}
	stats.TotalRevenue = revenue.StringFixed(2)

	recent, err := s.regs.RecentForOrganizer(ctx, organizerID, RecentRegistrationsLimit)
	if err != nil {
		s.logger.Error("stats: recent registrations failed", "error", err, "organizer_id", organizerID)
		return nil, ErrStorage
	}
	stats.RecentRegistrations = recent
	return stats, nil
}
