package parts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/workshoplabs/backend-garage/internal/billing"
	"github.com/workshoplabs/backend-garage/internal/cache"
	"github.com/workshoplabs/backend-garage/internal/common"
)

type storage interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, orgID, id string) (Record, error)
	List(ctx context.Context, orgID, search string, limit, offset int) ([]Record, int64, error)
	Update(ctx context.Context, rec Record) (Record, error)
	AdjustQuantity(ctx context.Context, orgID, id string, delta float64) (Record, error)
	ListLowStock(ctx context.Context, orgID string, threshold float64, limit int) ([]Record, error)
	Delete(ctx context.Context, orgID, id string) error
}

// Service manages the parts catalog with a read-through Redis cache on the
// list endpoint. Writes invalidate the org's cached lists.
type Service struct {
	store    storage
	redis    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store    storage
	Redis    *redis.Client
	CacheTTL time.Duration
	Logger   zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("parts: store is required")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{store: cfg.Store, redis: cfg.Redis, cacheTTL: ttl, logger: cfg.Logger}, nil
}

// Input carries the writable part fields.
type Input struct {
	SKU         string  `json:"sku" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description,omitempty"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
	Quantity    float64 `json:"quantity" validate:"gte=0"`
}

// ListResult pages parts along with the total count.
type ListResult struct {
	Items []Record `json:"items"`
	Total int64    `json:"total"`
}

// Create persists a new part and drops cached lists.
func (s *Service) Create(ctx context.Context, orgID string, input Input) (Record, error) {
	rec, err := s.store.Insert(ctx, Record{
		OrgID: orgID, SKU: input.SKU, Name: input.Name,
		Description: input.Description, UnitPrice: input.UnitPrice, Quantity: input.Quantity,
	})
	if err != nil {
		return Record{}, s.mapErr(err)
	}
	s.invalidate(ctx)
	return rec, nil
}

// Get loads one part.
func (s *Service) Get(ctx context.Context, orgID, id string) (Record, error) {
	rec, err := s.store.Get(ctx, orgID, id)
	return rec, s.mapErr(err)
}

// List returns parts, served from cache when possible.
func (s *Service) List(ctx context.Context, orgID, search string, limit, offset int) (ListResult, error) {
	key := cache.KeyPartsList(ctx, fmt.Sprintf("parts:list:%s:%d:%d", search, limit, offset))
	if s.redis != nil {
		if raw, err := s.redis.Get(ctx, key).Result(); err == nil {
			var cached ListResult
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
		}
	}

	items, total, err := s.store.List(ctx, orgID, search, limit, offset)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Record{}
	}
	result := ListResult{Items: items, Total: total}
	if s.redis != nil {
		if raw, err := json.Marshal(result); err == nil {
			if err := s.redis.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
				s.logger.Debug().Err(err).Msg("parts_cache_set_failed")
			}
		}
	}
	return result, nil
}

// Update rewrites a part and drops cached lists.
func (s *Service) Update(ctx context.Context, orgID, id string, input Input) (Record, error) {
	rec, err := s.store.Update(ctx, Record{
		ID: id, OrgID: orgID, SKU: input.SKU, Name: input.Name,
		Description: input.Description, UnitPrice: input.UnitPrice, Quantity: input.Quantity,
	})
	if err != nil {
		return Record{}, s.mapErr(err)
	}
	s.invalidate(ctx)
	return rec, nil
}

// Consume reduces stock for a part, e.g. when it is placed on an invoice.
func (s *Service) Consume(ctx context.Context, orgID, id string, qty float64) (Record, error) {
	rec, err := s.store.AdjustQuantity(ctx, orgID, id, -qty)
	if err != nil {
		return Record{}, s.mapErr(err)
	}
	s.invalidate(ctx)
	return rec, nil
}

// LowStock lists parts running out, for reorder screens. Not cached: the
// listing is rare and must reflect live quantities.
func (s *Service) LowStock(ctx context.Context, orgID string, threshold float64, limit int) ([]Record, error) {
	items, err := s.store.ListLowStock(ctx, orgID, threshold, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Record{}
	}
	return items, nil
}

// Delete removes a part and drops cached lists.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	if err := s.store.Delete(ctx, orgID, id); err != nil {
		return s.mapErr(err)
	}
	s.invalidate(ctx)
	return nil
}

// PartCandidate is a suggested invoice line derived from a stocked part.
type PartCandidate struct {
	PartID    string           `json:"partId"`
	SKU       string           `json:"sku"`
	InStock   float64          `json:"inStock"`
	Suggested billing.LineItem `json:"suggested"`
}

// LineCandidates lists parts as ready-to-add invoice lines. The suggested line
// carries the part reference so the reconciler can match it on later edits.
func (s *Service) LineCandidates(ctx context.Context, orgID, search string) ([]PartCandidate, error) {
	result, err := s.List(ctx, orgID, search, 50, 0)
	if err != nil {
		return nil, err
	}
	out := make([]PartCandidate, 0, len(result.Items))
	for _, rec := range result.Items {
		out = append(out, PartCandidate{
			PartID:  rec.ID,
			SKU:     rec.SKU,
			InStock: rec.Quantity,
			Suggested: billing.LineItem{
				Description:  rec.Name,
				Kind:         billing.KindParts,
				Quantity:     1,
				UnitPrice:    rec.UnitPrice,
				SourcePartID: rec.ID,
			},
		})
	}
	return out, nil
}

// invalidate drops every cached parts list for the org. Keys are bounded by
// the pagination grid so a SCAN is acceptable here.
func (s *Service) invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	pattern := cache.KeyPartsList(ctx, "parts:list:*")
	iter := s.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.Debug().Err(err).Msg("parts_cache_del_failed")
		}
	}
	if err := iter.Err(); err != nil {
		s.logger.Debug().Err(err).Msg("parts_cache_scan_failed")
	}
}

func (s *Service) mapErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return common.NewAppError("NOT_FOUND", "part not found", http.StatusNotFound, err)
	}
	if errors.Is(err, ErrDuplicateSKU) {
		return common.NewAppError("CONFLICT", "a part with this SKU already exists", http.StatusConflict, err)
	}
	return err
}
