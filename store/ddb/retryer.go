package ddb

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Retryer interface contains one method that decides whether to retry based
// on error
type Retryer interface {
	ShouldRetry(error) bool
}

// DefaultRetryer retries writes rejected for exceeding provisioned
// throughput
type DefaultRetryer struct{}

// ShouldRetry when error occurred
func (r *DefaultRetryer) ShouldRetry(err error) bool {
	var throughput *types.ProvisionedThroughputExceededException
	return errors.As(err, &throughput)
}
