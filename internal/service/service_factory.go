package service

import (
	"time"

	"balloon-service/internal/audit"
	"balloon-service/internal/ratelimit"
	"balloon-service/internal/repository"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	balloonRepo       *repository.BalloonRepository
	statsRepo         *repository.UserStatisticsRepository
	limiter           *ratelimit.Limiter
	sink              audit.Sink
	now               func() time.Time
	balloonService    *BalloonService
	statisticsService *StatisticsService
}

func NewServiceFactory(
	balloonRepo *repository.BalloonRepository,
	statsRepo *repository.UserStatisticsRepository,
	limiter *ratelimit.Limiter,
	sink audit.Sink,
	now func() time.Time,
) *ServiceFactory {
	return &ServiceFactory{
		balloonRepo: balloonRepo,
		statsRepo:   statsRepo,
		limiter:     limiter,
		sink:        sink,
		now:         now,
	}
}

// BalloonService returns the balloon service instance (singleton)
func (f *ServiceFactory) BalloonService() *BalloonService {
	if f.balloonService == nil {
		f.balloonService = NewBalloonService(f.balloonRepo, f.statsRepo, f.limiter, f.sink, f.now)
	}
	return f.balloonService
}

// StatisticsService returns the statistics service instance (singleton)
func (f *ServiceFactory) StatisticsService() *StatisticsService {
	if f.statisticsService == nil {
		f.statisticsService = NewStatisticsService(f.statsRepo)
	}
	return f.statisticsService
}

// Cleanup closes the audit sinks.
func (f *ServiceFactory) Cleanup() error {
	if f.balloonService != nil {
		return f.balloonService.Close()
	}
	if f.sink != nil {
		return f.sink.Close()
	}
	return nil
}
