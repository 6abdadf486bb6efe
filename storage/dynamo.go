package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/codeGROOVE-dev/retry"

	"hackerdigest/pkg/digest"
)

// Partition keys of the single-table layout.
const (
	pkSnapshot     = "POSTS_SNAPSHOT"
	pkDigestPrefix = "DIGEST#"
	pkSubscriber   = "SUBSCRIBER"
	pkPending      = "PENDING_SUBSCRIPTION"

	tokenIndex = "unsubscribe_token_index"
)

// DynamoClient is the slice of the DynamoDB API the store uses.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store persists everything in one DynamoDB table.
type Store struct {
	client DynamoClient
	table  string
	logger *slog.Logger
}

// NewStore creates a DynamoDB-backed store.
func NewStore(client DynamoClient, table string, logger *slog.Logger) *Store {
	return &Store{client: client, table: table, logger: logger}
}

// retryOpts is the standard retry policy around every DynamoDB call.
func (s *Store) retryOpts(ctx context.Context, op string) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2 * time.Minute),
		retry.MaxJitter(10 * time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying storage operation after error", "attempt", n, "operation", op, "error", retryErr)
		}),
	}
}

func (s *Store) getItem(ctx context.Context, op, pk, sk string) (map[string]types.AttributeValue, error) {
	var item map[string]types.AttributeValue
	err := retry.Do(
		func() error {
			out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String(s.table),
				Key:       itemKey(pk, sk),
			})
			if err != nil {
				return fmt.Errorf("get item: %w", err)
			}
			item = out.Item
			return nil
		},
		s.retryOpts(ctx, op)...,
	)
	if err != nil {
		return nil, fmt.Errorf("%s after retries: %w", op, err)
	}
	return item, nil
}

func (s *Store) putItem(ctx context.Context, op string, item map[string]types.AttributeValue) error {
	err := retry.Do(
		func() error {
			_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: aws.String(s.table),
				Item:      item,
			})
			if err != nil {
				return fmt.Errorf("put item: %w", err)
			}
			return nil
		},
		s.retryOpts(ctx, op)...,
	)
	if err != nil {
		return fmt.Errorf("%s after retries: %w", op, err)
	}
	return nil
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// PutSnapshot stores the fetched candidate pool for date.
func (s *Store) PutSnapshot(ctx context.Context, date string, posts map[string]digest.Item) error {
	doc, err := marshalDocument(posts)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	item := itemKey(pkSnapshot, date)
	item["posts"] = &types.AttributeValueMemberM{Value: doc}
	item["expires_at"] = expiresAt(contentTTL)
	if err := s.putItem(ctx, "put snapshot", item); err != nil {
		return err
	}
	s.logger.Info("Snapshot saved", "date", date, "post_count", len(posts))
	return nil
}

// GetDigest returns the digest stored for (strategy, date), or nil when no
// digest was recorded.
func (s *Store) GetDigest(ctx context.Context, strategy digest.Strategy, date string) ([]digest.Item, error) {
	item, err := s.getItem(ctx, "get digest", pkDigestPrefix+strategy.String(), date)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	postsAttr, ok := item["posts"]
	if !ok {
		return nil, fmt.Errorf("digest record %s/%s has no posts attribute", strategy, date)
	}
	wrapped := map[string]types.AttributeValue{"posts": postsAttr}
	var doc struct {
		Posts []digest.Item `json:"posts"`
	}
	if err := unmarshalDocument(wrapped, &doc); err != nil {
		return nil, fmt.Errorf("decode digest %s/%s: %w", strategy, date, err)
	}
	return doc.Posts, nil
}

// PutDigest stores the digest for (strategy, date), overwriting any previous
// value.
func (s *Store) PutDigest(ctx context.Context, strategy digest.Strategy, date string, posts []digest.Item) error {
	if posts == nil {
		// An empty digest is still a record; nil would encode as null and
		// read back as absent.
		posts = []digest.Item{}
	}
	doc, err := marshalDocument(map[string]any{"posts": posts})
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}
	item := itemKey(pkDigestPrefix+strategy.String(), date)
	item["posts"] = doc["posts"]
	item["expires_at"] = expiresAt(contentTTL)
	if err := s.putItem(ctx, "put digest", item); err != nil {
		return err
	}
	s.logger.Info("Digest saved", "strategy", strategy.String(), "date", date, "post_count", len(posts))
	return nil
}

// GetSubscriberByEmail returns the verified subscriber for email, or nil.
func (s *Store) GetSubscriberByEmail(ctx context.Context, email string) (*digest.Subscriber, error) {
	email = digest.NormalizeEmail(email)
	item, err := s.getItem(ctx, "get subscriber", pkSubscriber, email)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	return subscriberFromItem(item)
}

// GetSubscriberByToken resolves an unsubscribe token through the token
// index. Zero matches is nil; more than one is DuplicateTokenError.
func (s *Store) GetSubscriberByToken(ctx context.Context, token digest.Token) (*digest.Subscriber, error) {
	var items []map[string]types.AttributeValue
	err := retry.Do(
		func() error {
			out, err := s.client.Query(ctx, &dynamodb.QueryInput{
				TableName:              aws.String(s.table),
				IndexName:              aws.String(tokenIndex),
				KeyConditionExpression: aws.String("unsubscribe_token = :token"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":token": &types.AttributeValueMemberS{Value: token.String()},
				},
			})
			if err != nil {
				return fmt.Errorf("query token index: %w", err)
			}
			items = out.Items
			return nil
		},
		s.retryOpts(ctx, "get subscriber by token")...,
	)
	if err != nil {
		return nil, fmt.Errorf("get subscriber by token after retries: %w", err)
	}

	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return subscriberFromItem(items[0])
	default:
		s.logger.Error("Unsubscribe token is not unique", "count", len(items))
		return nil, &DuplicateTokenError{Token: token, Count: len(items)}
	}
}

// ListSubscribers returns every verified subscriber, following query
// pagination until the table is exhausted.
func (s *Store) ListSubscribers(ctx context.Context) ([]digest.Subscriber, error) {
	var subs []digest.Subscriber
	var startKey map[string]types.AttributeValue

	for {
		var out *dynamodb.QueryOutput
		err := retry.Do(
			func() error {
				var err error
				out, err = s.client.Query(ctx, &dynamodb.QueryInput{
					TableName:              aws.String(s.table),
					KeyConditionExpression: aws.String("PK = :pk"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":pk": &types.AttributeValueMemberS{Value: pkSubscriber},
					},
					ExclusiveStartKey: startKey,
				})
				if err != nil {
					return fmt.Errorf("query subscribers: %w", err)
				}
				return nil
			},
			s.retryOpts(ctx, "list subscribers")...,
		)
		if err != nil {
			return nil, fmt.Errorf("list subscribers after retries: %w", err)
		}

		for _, item := range out.Items {
			sub, err := subscriberFromItem(item)
			if err != nil {
				return nil, err
			}
			subs = append(subs, *sub)
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return subs, nil
}

// UpsertSubscriber creates or replaces the subscriber record.
func (s *Store) UpsertSubscriber(ctx context.Context, sub *digest.Subscriber) error {
	item := itemKey(pkSubscriber, sub.Email)
	item["email"] = &types.AttributeValueMemberS{Value: sub.Email}
	item["strategy"] = &types.AttributeValueMemberS{Value: sub.Strategy.String()}
	item["subscribed_at"] = &types.AttributeValueMemberS{Value: sub.SubscribedAt.UTC().Format(time.RFC3339)}
	item["unsubscribe_token"] = &types.AttributeValueMemberS{Value: sub.UnsubscribeToken.String()}
	if err := s.putItem(ctx, "upsert subscriber", item); err != nil {
		return err
	}
	s.logger.Info("Subscriber saved", "email", sub.Email, "strategy", sub.Strategy.String())
	return nil
}

// DeleteSubscriber removes the subscriber for email. Missing records are
// not an error.
func (s *Store) DeleteSubscriber(ctx context.Context, email string) error {
	email = digest.NormalizeEmail(email)
	err := retry.Do(
		func() error {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.table),
				Key:       itemKey(pkSubscriber, email),
			})
			if err != nil {
				return fmt.Errorf("delete item: %w", err)
			}
			return nil
		},
		s.retryOpts(ctx, "delete subscriber")...,
	)
	if err != nil {
		return fmt.Errorf("delete subscriber after retries: %w", err)
	}
	s.logger.Info("Subscriber deleted", "email", email)
	return nil
}

// GetPendingByEmail returns the pending subscription for email, or nil.
func (s *Store) GetPendingByEmail(ctx context.Context, email string) (*digest.PendingSubscription, error) {
	email = digest.NormalizeEmail(email)
	item, err := s.getItem(ctx, "get pending", pkPending, email)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	return pendingFromItem(item)
}

// UpsertPending creates or replaces the pending subscription record. The
// expires_at attribute doubles as the table's TTL field.
func (s *Store) UpsertPending(ctx context.Context, pending *digest.PendingSubscription) error {
	item := itemKey(pkPending, pending.Email)
	item["email"] = &types.AttributeValueMemberS{Value: pending.Email}
	item["token"] = &types.AttributeValueMemberS{Value: pending.Token.String()}
	item["strategy"] = &types.AttributeValueMemberS{Value: pending.Strategy.String()}
	item["created_at"] = &types.AttributeValueMemberS{Value: pending.CreatedAt.UTC().Format(time.RFC3339)}
	item["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(pending.ExpiresAt.Unix(), 10)}
	if err := s.putItem(ctx, "upsert pending", item); err != nil {
		return err
	}
	s.logger.Info("Pending subscription saved", "email", pending.Email, "strategy", pending.Strategy.String())
	return nil
}

func expiresAt(ttl time.Duration) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)}
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	attr, ok := item[name]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", name)
	}
	s, ok := attr.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is %T, want string", name, attr)
	}
	return s.Value, nil
}

func numberAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	attr, ok := item[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", name)
	}
	n, ok := attr.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is %T, want number", name, attr)
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %q: %w", name, err)
	}
	return v, nil
}

// subscriberFromItem rebuilds a Subscriber from its flat attributes. Any
// missing or malformed field is an integrity error, never skipped.
func subscriberFromItem(item map[string]types.AttributeValue) (*digest.Subscriber, error) {
	email, err := stringAttr(item, "email")
	if err != nil {
		return nil, fmt.Errorf("subscriber record: %w", err)
	}
	rawStrategy, err := stringAttr(item, "strategy")
	if err != nil {
		return nil, fmt.Errorf("subscriber record %s: %w", email, err)
	}
	strategy, err := digest.ParseStrategy(rawStrategy)
	if err != nil {
		return nil, fmt.Errorf("subscriber record %s: %w", email, err)
	}
	rawAt, err := stringAttr(item, "subscribed_at")
	if err != nil {
		return nil, fmt.Errorf("subscriber record %s: %w", email, err)
	}
	subscribedAt, err := time.Parse(time.RFC3339, rawAt)
	if err != nil {
		return nil, fmt.Errorf("subscriber record %s: invalid subscribed_at: %w", email, err)
	}
	rawToken, err := stringAttr(item, "unsubscribe_token")
	if err != nil {
		return nil, fmt.Errorf("subscriber record %s: %w", email, err)
	}
	token, err := digest.ParseToken(rawToken)
	if err != nil {
		return nil, fmt.Errorf("subscriber record %s: %w", email, err)
	}
	return &digest.Subscriber{
		Email:            email,
		Strategy:         strategy,
		SubscribedAt:     subscribedAt,
		UnsubscribeToken: token,
	}, nil
}

// pendingFromItem rebuilds a PendingSubscription from its flat attributes.
func pendingFromItem(item map[string]types.AttributeValue) (*digest.PendingSubscription, error) {
	email, err := stringAttr(item, "email")
	if err != nil {
		return nil, fmt.Errorf("pending record: %w", err)
	}
	rawToken, err := stringAttr(item, "token")
	if err != nil {
		return nil, fmt.Errorf("pending record %s: %w", email, err)
	}
	token, err := digest.ParseToken(rawToken)
	if err != nil {
		return nil, fmt.Errorf("pending record %s: %w", email, err)
	}
	rawStrategy, err := stringAttr(item, "strategy")
	if err != nil {
		return nil, fmt.Errorf("pending record %s: %w", email, err)
	}
	strategy, err := digest.ParseStrategy(rawStrategy)
	if err != nil {
		return nil, fmt.Errorf("pending record %s: %w", email, err)
	}
	rawAt, err := stringAttr(item, "created_at")
	if err != nil {
		return nil, fmt.Errorf("pending record %s: %w", email, err)
	}
	createdAt, err := time.Parse(time.RFC3339, rawAt)
	if err != nil {
		return nil, fmt.Errorf("pending record %s: invalid created_at: %w", email, err)
	}
	expiresAtUnix, err := numberAttr(item, "expires_at")
	if err != nil {
		return nil, fmt.Errorf("pending record %s: %w", email, err)
	}
	return &digest.PendingSubscription{
		Email:     email,
		Token:     token,
		Strategy:  strategy,
		CreatedAt: createdAt,
		ExpiresAt: time.Unix(expiresAtUnix, 0).UTC(),
	}, nil
}
