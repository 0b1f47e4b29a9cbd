package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/ports"
	"github.com/samirrijal/eudrsat/internal/pkg/metrics"
)

// NewStaticStrategy returns the tile strategy at a fixed zoom. The request
// period is ignored: the tile layer is a single mosaic.
func NewStaticStrategy(src ports.StaticTileSource, zoom int) ports.ImageryStrategy {
	return staticStrategy{src: src, zoom: zoom}
}

type staticStrategy struct {
	src  ports.StaticTileSource
	zoom int
}

func (staticStrategy) Name() domain.Strategy { return domain.StrategyStatic }

func (s staticStrategy) Build(_ context.Context, req domain.ImageryRequest) (domain.ImageSource, error) {
	if err := req.Bounds.Validate(); err != nil {
		return domain.ImageSource{}, err
	}
	return s.src.TileImage(req.Bounds, s.zoom, req.Label), nil
}

// NewProcessingStrategy renders through the processing API with token. The
// token belongs to one cycle; the strategy must not outlive it.
func NewProcessingStrategy(client ports.ProcessingClient, token domain.AccessToken) ports.ImageryStrategy {
	return processingStrategy{client: client, token: token}
}

type processingStrategy struct {
	client ports.ProcessingClient
	token  domain.AccessToken
}

func (processingStrategy) Name() domain.Strategy { return domain.StrategyAuthenticated }

func (s processingStrategy) Build(ctx context.Context, req domain.ImageryRequest) (domain.ImageSource, error) {
	return s.client.Process(ctx, s.token, req)
}

// WithImageCache reads processed images through cache. A nil cache or a
// non-positive ttl returns next unchanged.
func WithImageCache(next ports.ImageryStrategy, cache ports.CacheService, ttlSeconds int) ports.ImageryStrategy {
	if cache == nil || ttlSeconds <= 0 {
		return next
	}
	return cachedStrategy{next: next, cache: cache, ttl: ttlSeconds}
}

type cachedStrategy struct {
	next  ports.ImageryStrategy
	cache ports.CacheService
	ttl   int
}

func (s cachedStrategy) Name() domain.Strategy { return s.next.Name() }

func (s cachedStrategy) Build(ctx context.Context, req domain.ImageryRequest) (domain.ImageSource, error) {
	key := cacheKey(req)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var src domain.ImageSource
		if err := json.Unmarshal(data, &src); err == nil && len(src.Data) > 0 {
			metrics.CacheHits.WithLabelValues("imagery").Inc()
			src.Label = req.Label
			return src, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("imagery").Inc()

	src, err := s.next.Build(ctx, req)
	if err != nil {
		return domain.ImageSource{}, err
	}
	if data, err := json.Marshal(src); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			slog.WarnContext(ctx, "imagery cache write failed", "error", err)
		}
	}
	return src, nil
}

// cacheKey identifies a processed image by everything that shapes it.
func cacheKey(req domain.ImageryRequest) string {
	cloud := "-"
	if req.MaxCloudCoverage != nil {
		cloud = fmt.Sprintf("%g", *req.MaxCloudCoverage)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%.6f:%.6f:%.6f:%.6f|%s:%s|%dx%d|%s|%s",
		req.Bounds.West, req.Bounds.South, req.Bounds.East, req.Bounds.North,
		req.Period.From, req.Period.To,
		req.Width, req.Height, req.Format, cloud,
	)
	return "imagery:process:" + hex.EncodeToString(h.Sum(nil))
}
