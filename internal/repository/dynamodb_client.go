package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"support-agent/internal/domain"
)

const (
	skState     = "STATE#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps one item per session holding the full turn list.
//
// The item's version attribute is the turn count. A put is conditional on
// the item still holding the version the state was read at, so a concurrent
// writer that lost the race gets ErrConflict.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a DynamoDB-backed conversation store.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(sessionKey string) string {
	return "CONV#" + sessionKey
}

func stateKey(sessionKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: convPK(sessionKey)},
		"SK": &types.AttributeValueMemberS{Value: skState},
	}
}

// ttlValue returns a Unix timestamp 30 days after now.
func ttlValue(now time.Time) int64 {
	return now.Add(ttlDuration).Unix()
}

// Get loads the conversation for sessionKey.
func (s *DynamoStore) Get(ctx context.Context, sessionKey string) (domain.ConversationState, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            stateKey(sessionKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.ConversationState{}, false, fmt.Errorf("repository: Get get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.ConversationState{}, false, nil
	}

	state, err := itemToState(sessionKey, out.Item)
	if err != nil {
		return domain.ConversationState{}, false, fmt.Errorf("repository: Get decode: %w: %w", domain.ErrStateCorrupt, err)
	}
	state.Version = len(state.Turns)
	return state, true, nil
}

// Put replaces the stored conversation, refreshing its TTL. A replacing put
// is unconditional.
func (s *DynamoStore) Put(ctx context.Context, state domain.ConversationState) error {
	if strings.TrimSpace(state.SessionKey) == "" {
		return errors.New("repository: Put: session key is required")
	}
	in := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      stateItem(state, s.now()),
	}
	switch {
	case state.Replace:
		// unconditional
	case state.Version == 0:
		in.ConditionExpression = aws.String("attribute_not_exists(PK)")
	default:
		in.ConditionExpression = aws.String("version = :base")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":base": &types.AttributeValueMemberN{Value: strconv.Itoa(state.Version)},
		}
	}
	_, err := s.api.PutItem(ctx, in)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("repository: Put: %w", ErrConflict)
		}
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

// Clear deletes the conversation item. Deleting a missing item succeeds.
func (s *DynamoStore) Clear(ctx context.Context, sessionKey string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       stateKey(sessionKey),
	})
	if err != nil {
		return fmt.Errorf("repository: Clear: %w", err)
	}
	return nil
}

func stateItem(state domain.ConversationState, now time.Time) map[string]types.AttributeValue {
	turns := make([]types.AttributeValue, 0, len(state.Turns))
	for _, t := range state.Turns {
		turns = append(turns, &types.AttributeValueMemberM{Value: turnItem(t)})
	}
	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: convPK(state.SessionKey)},
		"SK":         &types.AttributeValueMemberS{Value: skState},
		"sessionKey": &types.AttributeValueMemberS{Value: state.SessionKey},
		"turns":      &types.AttributeValueMemberL{Value: turns},
		"version":    &types.AttributeValueMemberN{Value: strconv.Itoa(len(state.Turns))},
		"updatedAt":  &types.AttributeValueMemberS{Value: updated.UTC().Format(time.RFC3339Nano)},
		"ttl":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlValue(now))},
	}
}

func turnItem(t domain.ConversationTurn) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"role":      &types.AttributeValueMemberS{Value: string(t.Role)},
		"content":   &types.AttributeValueMemberS{Value: t.Content},
		"createdAt": &types.AttributeValueMemberS{Value: t.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if t.Metadata != nil {
		item["category"] = &types.AttributeValueMemberS{Value: string(t.Metadata.Category)}
		item["sentiment"] = &types.AttributeValueMemberS{Value: string(t.Metadata.Sentiment)}
	}
	return item
}

// itemToState converts a DynamoDB attribute map to a ConversationState.
func itemToState(sessionKey string, item map[string]types.AttributeValue) (domain.ConversationState, error) {
	raw, ok := item["turns"]
	if !ok {
		return domain.ConversationState{}, errors.New("missing attribute \"turns\"")
	}
	list, ok := raw.(*types.AttributeValueMemberL)
	if !ok {
		return domain.ConversationState{}, errors.New("attribute \"turns\" is not a list")
	}
	version, err := intAttr(item, "version")
	if err != nil {
		return domain.ConversationState{}, err
	}
	if version != len(list.Value) {
		return domain.ConversationState{}, fmt.Errorf("version %d does not match %d turns", version, len(list.Value))
	}

	state := domain.NewConversationState(sessionKey)
	if updated, err := timeAttr(item, "updatedAt"); err == nil {
		state.UpdatedAt = updated
	}
	for i, v := range list.Value {
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return domain.ConversationState{}, fmt.Errorf("turn %d is not a map", i)
		}
		turn, err := itemToTurn(m.Value)
		if err != nil {
			return domain.ConversationState{}, fmt.Errorf("turn %d: %w", i, err)
		}
		state.Turns = append(state.Turns, turn)
	}
	return state, nil
}

func itemToTurn(item map[string]types.AttributeValue) (domain.ConversationTurn, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.ConversationTurn{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.ConversationTurn{}, err
	}
	created, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.ConversationTurn{}, err
	}
	turn := domain.ConversationTurn{Role: domain.Role(role), Content: content, CreatedAt: created}

	category, _ := strAttr(item, "category")   // allow empty
	sentiment, _ := strAttr(item, "sentiment") // allow empty
	if category != "" || sentiment != "" {
		turn.Metadata = &domain.TurnMetadata{
			Category:  domain.Category(category),
			Sentiment: domain.Sentiment(sentiment),
		}
	}
	return turn, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}
