package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/types"
)

type StatisticType string

const (
	StatisticTypeCountByStatus       StatisticType = "count_by_status"
	StatisticTypeCountByTier         StatisticType = "count_by_tier"
	StatisticTypeDailyNewCount       StatisticType = "daily_new_count"
	StatisticTypeCurrentCount        StatisticType = "current_count"
	StatisticTypeExpiringInSevenDays StatisticType = "expiring_in_seven_days"
)

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items"`
}

func (f *StatisticRequest) Build(builder clause.Builder) {
	if f == nil || len(f.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, filter := range f.Filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		filter.Build(builder)
	}
}

type StatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// Service provides aggregate subscription statistics for the admin surface.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) getCountByStatus(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("status as label, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request}}).
		Group("status").
		Order("status")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getCountByTier(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("tier as label, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request}}).
		Where("status IN ?", []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusPastDue}).
		Group("tier").
		Order("tier")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getCurrentCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request}}).
		Where("status IN ?", []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusPastDue}).
		Where("current_period_end >= ?", time.Now())
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getExpiringInSevenDays(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	now := time.Now()
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("TO_CHAR(current_period_end, 'YYYY-MM-DD') as date, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request}}).
		Where("status = ?", types.SubscriptionStatusActive).
		Where("cancel_at_period_end = true").
		Where("current_period_end BETWEEN ? AND ?", now, now.Add(7*24*time.Hour)).
		Group("TO_CHAR(current_period_end, 'YYYY-MM-DD')").
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *StatisticRequest, dataItem *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeCountByStatus:
		return s.getCountByStatus(ctx, request)
	case StatisticTypeCountByTier:
		return s.getCountByTier(ctx, request)
	case StatisticTypeDailyNewCount:
		return s.getDailyNewCount(ctx, request)
	case StatisticTypeCurrentCount:
		return s.getCurrentCount(ctx, request)
	case StatisticTypeExpiringInSevenDays:
		return s.getExpiringInSevenDays(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetSubscriptionStatistic fans the requested data items out concurrently
// and collects them into one response.
func (s *Service) GetSubscriptionStatistic(ctx context.Context, request *StatisticRequest) (*StatisticResponse, error) {
	results, err := collectStatistics(request.DataItems, func(di *StatisticDataItem) ([]StatisticResponseDataItem, error) {
		return s.getStatistic(ctx, request, di)
	})
	if err != nil {
		return nil, err
	}
	return &StatisticResponse{DataItems: results}, nil
}

// collectStatistics runs fetch for every data item concurrently and gathers
// all results before reporting the first error.
func collectStatistics(items []*StatisticDataItem, fetch func(*StatisticDataItem) ([]StatisticResponseDataItem, error)) (map[StatisticType][]StatisticResponseDataItem, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(items))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(items))

	for _, item := range items {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			res, err := fetch(di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	wg.Wait()
	close(errChan)
	close(resChan)

	results := make(map[StatisticType][]StatisticResponseDataItem, len(items))
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	if err := <-errChan; err != nil {
		return nil, err
	}
	return results, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
