package announcement

import (
	"context"
	"slices"
	"strings"
	"time"

	"conference-central/logging"
	"conference-central/query"
)

const (
	DefaultThreshold = 5
	messagePrefix    = "Last chance to attend! The following conferences are nearly sold out: "
)

// Refresher recomputes the announcement from conferences that have at
// least one and at most threshold seats left.
type Refresher struct {
	planner   *query.Planner
	cache     *Cache
	threshold int
	interval  time.Duration
}

func NewRefresher(planner *query.Planner, cache *Cache, threshold int, interval time.Duration) *Refresher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Refresher{planner: planner, cache: cache, threshold: threshold, interval: interval}
}

// Refresh updates the cached announcement and returns it. The entry is
// removed when no conference is nearly sold out.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	plan, err := r.planner.Plan([]query.Filter{
		{Field: "seatsAvailable", Operator: "<=", Value: r.threshold},
		{Field: "seatsAvailable", Operator: ">", Value: 0},
	}, "seatsAvailable", "name")
	if err != nil {
		return "", err
	}
	confs, err := r.planner.Run(plan).All(ctx)
	if err != nil {
		return "", err
	}

	if len(confs) == 0 {
		r.cache.Delete(ctx, Key)
		return "", nil
	}
	names := make([]string, 0, len(confs))
	for _, c := range confs {
		names = append(names, c.Name)
	}
	slices.Sort(names)
	msg := messagePrefix + strings.Join(names, ", ")
	r.cache.Set(ctx, Key, msg, 0)
	return msg, nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Msg("announcement refresh failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
