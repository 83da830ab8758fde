package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"balloon-service/internal/etag"
	"balloon-service/internal/models"
	"balloon-service/internal/repository"
	"balloon-service/internal/store"
	"balloon-service/internal/util"
)

const listReadConcurrency = 16

type statsComparator func(a, b *models.UserStatistics) int

var sortableFields = map[string]statsComparator{
	"userName": func(a, b *models.UserStatistics) int { return strings.Compare(a.UserName, b.UserName) },
	"hits":     func(a, b *models.UserStatistics) int { return cmp.Compare(a.Hits, b.Hits) },
	"misses":   func(a, b *models.UserStatistics) int { return cmp.Compare(a.Misses, b.Misses) },
	"total":    func(a, b *models.UserStatistics) int { return cmp.Compare(a.Total, b.Total) },
	"lastHit":  func(a, b *models.UserStatistics) int { return a.LastHit.Compare(b.LastHit) },
	"lastMiss": func(a, b *models.UserStatistics) int { return a.LastMiss.Compare(b.LastMiss) },
	"violationFactor": func(a, b *models.UserStatistics) int {
		return cmp.Compare(a.ViolationFactor, b.ViolationFactor)
	},
	"lastChangeRequestDate": func(a, b *models.UserStatistics) int {
		return a.LastChangeRequestDate.Compare(b.LastChangeRequestDate)
	},
}

// SortCriterion is one "field [asc|desc]" term of an orderBy expression.
type SortCriterion struct {
	Field      string
	Descending bool
}

// ParseOrderBy parses "field1 [asc|desc], field2 ...". Unknown fields are
// logged and dropped; a missing or unrecognised direction means ascending.
func ParseOrderBy(orderBy string) []SortCriterion {
	var criteria []SortCriterion
	for _, term := range strings.Split(orderBy, ",") {
		parts := strings.Fields(term)
		if len(parts) == 0 {
			continue
		}
		if _, ok := sortableFields[parts[0]]; !ok {
			util.Warn("Invalid sort field", util.String("field", parts[0]))
			continue
		}
		criteria = append(criteria, SortCriterion{
			Field:      parts[0],
			Descending: len(parts) > 1 && strings.EqualFold(parts[1], "desc"),
		})
	}
	return criteria
}

// SortUserStatistics orders list in place, stable, by criteria in priority
// order.
func SortUserStatistics(list []*models.UserStatistics, criteria []SortCriterion) {
	if len(criteria) == 0 {
		return
	}
	slices.SortStableFunc(list, func(a, b *models.UserStatistics) int {
		for _, c := range criteria {
			r := sortableFields[c.Field](a, b)
			if r == 0 {
				continue
			}
			if c.Descending {
				return -r
			}
			return r
		}
		return 0
	})
}

type StatisticsService struct {
	stats *repository.UserStatisticsRepository
}

func NewStatisticsService(stats *repository.UserStatisticsRepository) *StatisticsService {
	return &StatisticsService{stats: stats}
}

// Get returns one user's record and its ETag.
func (s *StatisticsService) Get(ctx context.Context, userName string) (*models.UserStatistics, string, error) {
	if userName == "" {
		return nil, "", ErrInvalidInput
	}
	stats, err := s.stats.Get(ctx, userName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %s", ErrUserStatisticsNotFound, userName)
		}
		return nil, "", err
	}
	tag, err := etag.Strong(stats)
	if err != nil {
		return nil, "", fmt.Errorf("failed to compute statistics etag: %w", err)
	}
	return stats, tag, nil
}

// List reads every record, skipping ones that vanished or cannot be decoded,
// then sorts by orderBy. The ETag covers the serialized result.
func (s *StatisticsService) List(ctx context.Context, orderBy string) ([]*models.UserStatistics, string, error) {
	names, err := s.stats.ListUserNames(ctx)
	if err != nil {
		return nil, "", err
	}

	records := make([]*models.UserStatistics, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listReadConcurrency)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			rec, err := s.stats.Get(gctx, name)
			switch {
			case err == nil:
				records[i] = rec
			case errors.Is(err, store.ErrNotFound):
			case errors.Is(err, repository.ErrCorruptRecord):
				util.Error("Skipping unparsable user statistics",
					util.String("user", name),
					util.ErrorField(err))
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	list := make([]*models.UserStatistics, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			list = append(list, rec)
		}
	}

	if orderBy != "" {
		SortUserStatistics(list, ParseOrderBy(orderBy))
	}

	tag, err := etag.Strong(list)
	if err != nil {
		return nil, "", fmt.Errorf("failed to compute list etag: %w", err)
	}
	return list, tag, nil
}
