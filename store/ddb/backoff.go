package ddb

import (
	"context"
	"math"
	"time"
)

// waitTimeExp waits between retries following the aws exponential backoff
// algorithm, up to 5 minutes per attempt.
// http://docs.aws.amazon.com/general/latest/gr/api-retries.html
func waitTimeExp(ctx context.Context, attempts int) error {
	if attempts == 0 {
		return nil
	}

	waitTime := time.Duration(math.Min(100*math.Pow(2, float64(attempts)), 300000)) * time.Millisecond

	timer := time.NewTimer(waitTime)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
