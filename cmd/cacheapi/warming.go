package cacheapi

import (
	"context"
	"time"

	"encore.dev/cron"

	"encore.app/cacheablefetcher"
	"encore.app/cachecoordinator"
	"encore.app/fingerprint"
	"encore.app/httpengine"
	"encore.app/warming"
)

var warmer *warming.Warmer

func init() {
	coord, err := cachecoordinator.NewFromEnv()
	if err != nil {
		panic(err)
	}
	fetcher := cacheablefetcher.New(httpengine.New(), coord, fingerprint.SHA256)
	warmer = warming.New(fetcher, coord, warming.Config{
		MaxOriginRPS:     50,
		Burst:            10,
		Concurrency:      4,
		NearExpiryWindow: 30 * time.Second,
	})
}

// HourlyWarmup is the example wiring the teacher ran as warming/cron.go: a
// scheduled call into Warmer.RunOnce. RunOnce itself has no opinion about
// scheduling — this is one valid caller among many (a ticker, an on-demand
// admin endpoint), not a requirement of the warming package.
var _ = cron.NewJob("hourly-warmup", cron.JobConfig{
	Title:    "Cache Warmup",
	Schedule: "0 * * * *",
	Endpoint: HourlyWarmup,
})

//encore:api private
func HourlyWarmup(ctx context.Context) error {
	_, err := warmer.RunOnce(ctx, warmItems())
	return err
}

// warmItems is the deployment-specific set of (Connection, CacheProfile)
// pairs worth keeping warm. A real deployment loads this from its own
// config or from a small index of recently-served ids; this module has no
// opinion about where that list comes from.
func warmItems() []warming.Item {
	return nil
}
