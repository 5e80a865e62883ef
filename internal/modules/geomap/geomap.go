package geomap

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	redispkg "github.com/omalk98/tracker-mailer/internal/pkg/redis"
	"github.com/omalk98/tracker-mailer/internal/pkg/response"
	"github.com/omalk98/tracker-mailer/internal/repository"
)

const cacheKey = "geomap:dataset"

// Point is a lat/lng pair in the map dataset.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Record is one country's aggregate: an arc from the reference origin to the
// first coordinate ever recorded for that country.
type Record struct {
	Start       Point  `json:"start"`
	End         Point  `json:"end"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	VisitCount  int    `json:"visitCount"`
}

// Options carries the aggregation knobs resolved from config.
type Options struct {
	// Origin is the reference point every arc starts from.
	OriginLat float64
	OriginLon float64
	// CacheTTL caches the serialized dataset in redis when > 0.
	CacheTTL time.Duration
}

// Service aggregates located visits into the map dataset.
type Service struct {
	visits repository.VisitStore
	cache  *redispkg.Client
	opts   Options
	log    *zap.Logger
}

func NewService(visits repository.VisitStore, cache *redispkg.Client, opts Options, log *zap.Logger) *Service {
	return &Service{visits: visits, cache: cache, opts: opts, log: log}
}

// Dataset recomputes the full aggregation: located visits grouped by
// country, keeping each country's first-seen coordinate and country code,
// ordered by visit count descending.
func (s *Service) Dataset(ctx context.Context) ([]Record, error) {
	if cached, ok := s.fromCache(ctx); ok {
		return cached, nil
	}

	events, err := s.visits.ListLocated(ctx)
	if err != nil {
		return nil, fmt.Errorf("list located visits: %w", err)
	}

	origin := Point{Lat: s.opts.OriginLat, Lng: s.opts.OriginLon}
	index := make(map[string]int, len(events))
	records := make([]Record, 0, len(events))
	for _, e := range events {
		if i, ok := index[e.Country]; ok {
			records[i].VisitCount++
			continue
		}
		index[e.Country] = len(records)
		records = append(records, Record{
			Start:       origin,
			End:         Point{Lat: *e.Coordinates.Lat, Lng: *e.Coordinates.Lon},
			Country:     e.Country,
			CountryCode: e.CountryCode,
			VisitCount:  1,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].VisitCount > records[j].VisitCount
	})

	s.toCache(ctx, records)
	return records, nil
}

func (s *Service) fromCache(ctx context.Context) ([]Record, bool) {
	if s.cache == nil || s.opts.CacheTTL <= 0 {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		s.log.Warn("map cache read failed", zap.Error(err))
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.log.Warn("map cache decode failed", zap.Error(err))
		return nil, false
	}
	return records, true
}

func (s *Service) toCache(ctx context.Context, records []Record) {
	if s.cache == nil || s.opts.CacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, string(raw), s.opts.CacheTTL); err != nil {
		s.log.Warn("map cache write failed", zap.Error(err))
	}
}

// Handler serves the aggregated map dataset.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/map", authMW, h.dataset)
}

// GET /map
func (h *Handler) dataset(c *gin.Context) {
	records, err := h.svc.Dataset(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, records)
}
