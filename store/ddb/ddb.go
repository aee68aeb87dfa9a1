// Package ddb provides a bookmark store backed by a DynamoDB table. One
// item per tracked subscription is kept current by putting an item as each
// message is discarded.
//
// The table must have a composite primary key of client_name (partition)
// and sub_id (sort), both strings.
package ddb

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	bookmark "github.com/alexgridx/bookmark-store"
)

// Option is used to override defaults when creating a new DynamoDB bookmark
// store
type Option func(*Store)

// WithDynamoClient sets the dynamoDb client
func WithDynamoClient(svc *dynamodb.Client) Option {
	return func(s *Store) {
		s.client = svc
	}
}

// WithRetryer sets the retryer
func WithRetryer(r Retryer) Option {
	return func(s *Store) {
		s.retryer = r
	}
}

var _ bookmark.Store = (*Store)(nil)

// New returns a bookmark store that uses DynamoDB for underlying storage
func New(ctx context.Context, trackedName, tableName string, opts ...Option) (*Store, error) {
	if trackedName == "" {
		return nil, fmt.Errorf("must provide tracked client name")
	}
	if tableName == "" {
		return nil, fmt.Errorf("must provide table name")
	}

	s := &Store{
		tracked: trackedName,
		table:   tableName,
		recent:  map[string]string{},
		retryer: &DefaultRetryer{},
	}

	for _, opt := range opts {
		opt(s)
	}

	// default client
	if s.client == nil {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		s.client = dynamodb.NewFromConfig(cfg)
	}

	if err := s.recover(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Store tracks the progress of one client's subscriptions in a DynamoDB
// table
type Store struct {
	tracked string
	table   string
	client  *dynamodb.Client
	retryer Retryer

	mu     sync.RWMutex
	recent map[string]string
}

type item struct {
	ClientName string `dynamodbav:"client_name"`
	SubID      string `dynamodbav:"sub_id"`
	Bookmark   string `dynamodbav:"bookmark"`
}

func (s *Store) recover(ctx context.Context) error {
	params := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("client_name = :client_name"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":client_name": &types.AttributeValueMemberS{
				Value: s.tracked,
			},
		},
	}

	paginator := dynamodb.NewQueryPaginator(s.client, params)
	for paginator.HasMorePages() {
		resp, err := paginator.NextPage(ctx)
		if err != nil {
			return &bookmark.RecoveryError{Cause: errors.Wrap(err, "ddb: read bookmarks")}
		}

		var items []item
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
			return &bookmark.RecoveryError{Cause: errors.Wrap(err, "ddb: unmarshal bookmarks")}
		}
		for _, i := range items {
			if i.SubID == "" || i.Bookmark == "" {
				continue
			}
			s.recent[i.SubID] = i.Bookmark
		}
	}

	return nil
}

// MostRecent returns the bookmark to resume the subscription from, or the
// epoch when none is recorded.
func (s *Store) MostRecent(subID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.recent[subID]; ok {
		return b
	}
	return bookmark.Epoch
}

// IsDiscarded always reports false. Discarding in receipt order means an
// arriving message has never been recorded.
func (s *Store) IsDiscarded(bookmark.Message) bool {
	return false
}

// Log records an arriving message. The table keeps one item per
// subscription, so the sequence is constant.
func (s *Store) Log(bookmark.Message) string {
	return "1"
}

// Discard marks a message as seen by the application. The item is put first
// and the bookmark becomes the resume point only once the write has
// succeeded. Throttled writes are retried with exponential backoff.
// Messages without a subscription id or bookmark are ignored.
func (s *Store) Discard(ctx context.Context, msg bookmark.Message) error {
	if msg.SubID == "" || msg.Bookmark == "" {
		return nil
	}

	it, err := attributevalue.MarshalMap(item{
		ClientName: s.tracked,
		SubID:      msg.SubID,
		Bookmark:   msg.Bookmark,
	})
	if err != nil {
		return &bookmark.PersistError{SubID: msg.SubID, Bookmark: msg.Bookmark, Cause: errors.Wrap(err, "ddb: marshal bookmark")}
	}

	for attempts := 0; ; attempts++ {
		if err := waitTimeExp(ctx, attempts); err != nil {
			return &bookmark.PersistError{SubID: msg.SubID, Bookmark: msg.Bookmark, Cause: err}
		}

		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.table),
			Item:      it,
		})
		if err == nil {
			break
		}
		if !s.retryer.ShouldRetry(err) {
			return &bookmark.PersistError{SubID: msg.SubID, Bookmark: msg.Bookmark, Cause: errors.Wrap(err, "ddb: write bookmark")}
		}
	}

	s.mu.Lock()
	s.recent[msg.SubID] = msg.Bookmark
	s.mu.Unlock()

	return nil
}

// Persisted does nothing. Replicated topics are not supported.
func (s *Store) Persisted(subID, bookmark string) {}

// SetServerVersion does nothing. Behavior does not vary by server version.
func (s *Store) SetServerVersion(version int) {}
