package counter

import (
	"context"
	"strconv"

	"github.com/medlemshub/medlemshub/internal/pkg/cache"
)

const (
	webhooksReceivedKey = "payments:counters:webhooks_received"
	settlementsKey      = "payments:counters:settlements"
	capturesFailedKey   = "payments:counters:captures_failed"
)

// AddWebhookReceived increments the per-provider webhook delivery counter in Redis
func AddWebhookReceived(provider string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhooksReceivedKey, provider, 1).Err()
}

// AddSettlement increments the per-provider settlement counter in Redis
func AddSettlement(provider string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, settlementsKey, provider, 1).Err()
}

// AddCaptureFailed increments the failed-capture counter in Redis
func AddCaptureFailed(provider string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, capturesFailedKey, provider, 1).Err()
}

// Snapshot returns the current per-provider counts for all payment counters.
func Snapshot() (map[string]map[string]int64, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	out := make(map[string]map[string]int64, 3)
	keys := map[string]string{
		"webhooks_received": webhooksReceivedKey,
		"settlements":       settlementsKey,
		"captures_failed":   capturesFailedKey,
	}
	for name, key := range keys {
		data, err := rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		counts := make(map[string]int64, len(data))
		for provider, raw := range data {
			n, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				continue
			}
			counts[provider] = n
		}
		out[name] = counts
	}
	return out, nil
}
