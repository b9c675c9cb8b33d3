package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RunStatusKey(runID uuid.UUID) string {
	return fmt.Sprintf("run:%s", runID)
}

// RunLockKey guards a storage container against concurrent retraining runs.
func RunLockKey(container string) string {
	return fmt.Sprintf("lock:run:%s", container)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}

func LatestMetricsKey(container string) string {
	return fmt.Sprintf("results:latest:%s", container)
}
