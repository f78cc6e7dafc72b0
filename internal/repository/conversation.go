// Package repository persists conversation state and published listings in
// DynamoDB. Conversations use a single-table layout: turns under
// PK=CONV#<id> with time-ordered MSG# sort keys, and a single META# record
// per conversation.
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

	"landsale-agent/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL

	// DynamoDB caps BatchWriteItem at 25 requests.
	batchDeleteSize = 25
)

// dynamodbAPI is the minimal DynamoDB interface required by the stores.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// ConversationStore wraps a DynamoDB table holding conversation state.
type ConversationStore struct {
	api       dynamodbAPI
	tableName string
}

// NewConversationStore creates a conversation store.
func NewConversationStore(api dynamodbAPI, tableName string) (*ConversationStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &ConversationStore{api: api, tableName: tableName}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

// msgSK returns the sort key for a turn using the current UTC timestamp.
func msgSK(ts time.Time) string {
	return skPrefixMsg + ts.UTC().Format(time.RFC3339Nano)
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// AppendTurn persists a single conversation turn.
func (s *ConversationStore) AppendTurn(ctx context.Context, conversationID, role, content string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("repository: AppendTurn: conversation id is required")
	}
	turn := domain.Turn{
		PK:             convPK(conversationID),
		SK:             msgSK(time.Now()),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		TTL:            ttlValue(),
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

// GetHistory queries the most recent MSG# items for a conversation and
// returns them in chronological order.
func (s *ConversationStore) GetHistory(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetHistory unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// GetMeta reads the conversation metadata record. The second return value
// reports whether the record exists.
func (s *ConversationStore) GetMeta(ctx context.Context, conversationID string) (domain.ConversationMeta, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.ConversationMeta{}, false, fmt.Errorf("repository: GetMeta: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.ConversationMeta{}, false, nil
	}

	meta, err := itemToMeta(out.Item)
	if err != nil {
		return domain.ConversationMeta{}, false, fmt.Errorf("repository: GetMeta decode: %w", err)
	}
	return meta, true, nil
}

// SaveMeta writes or replaces the conversation metadata record. PK, SK,
// lastActivity and TTL are set here so callers only fill the domain fields.
func (s *ConversationStore) SaveMeta(ctx context.Context, meta domain.ConversationMeta) error {
	if strings.TrimSpace(meta.ConversationID) == "" {
		return errors.New("repository: SaveMeta: conversation id is required")
	}
	meta.PK = convPK(meta.ConversationID)
	meta.SK = skMeta
	meta.LastActivity = time.Now().UTC().Format(time.RFC3339)
	meta.TTL = ttlValue()

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      metaItem(meta),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveMeta: %w", err)
	}
	return nil
}

// ResetConversation deletes every MSG# item for the conversation and clears
// the metadata record, preserving only the model selection.
func (s *ConversationStore) ResetConversation(ctx context.Context, conversationID string) error {
	meta, found, err := s.GetMeta(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("repository: ResetConversation: %w", err)
	}

	keys, err := s.turnKeys(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("repository: ResetConversation: %w", err)
	}
	for start := 0; start < len(keys); start += batchDeleteSize {
		end := start + batchDeleteSize
		if end > len(keys) {
			end = len(keys)
		}
		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}
		if err := s.batchDelete(ctx, requests); err != nil {
			return fmt.Errorf("repository: ResetConversation: %w", err)
		}
	}

	if !found {
		return nil
	}
	cleared := domain.ConversationMeta{
		ConversationID: conversationID,
		Model:          meta.Model,
	}
	if err := s.SaveMeta(ctx, cleared); err != nil {
		return fmt.Errorf("repository: ResetConversation: %w", err)
	}
	return nil
}

// turnKeys collects the PK/SK pairs of every MSG# item in a conversation.
func (s *ConversationStore) turnKeys(ctx context.Context, conversationID string) ([]map[string]types.AttributeValue, error) {
	var keys []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
				":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
			},
			ProjectionExpression: aws.String("PK, SK"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query turn keys: %w", err)
		}
		for _, item := range out.Items {
			keys = append(keys, map[string]types.AttributeValue{
				"PK": item["PK"],
				"SK": item["SK"],
			})
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return keys, nil
}

// batchDelete issues one BatchWriteItem call, retrying unprocessed items.
func (s *ConversationStore) batchDelete(ctx context.Context, requests []types.WriteRequest) error {
	for len(requests) > 0 {
		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				s.tableName: requests,
			},
		})
		if err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
		requests = out.UnprocessedItems[s.tableName]
	}
	return nil
}

// itemToTurn converts a DynamoDB attribute map to a Turn.
func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Turn{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Turn{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Turn{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.Turn{}, err
	}
	conversationID, _ := strAttr(item, "conversationId") // allow empty

	return domain.Turn{
		PK:             pk,
		SK:             sk,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}, nil
}

func itemToMeta(item map[string]types.AttributeValue) (domain.ConversationMeta, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.ConversationMeta{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.ConversationMeta{}, err
	}
	conversationID, err := strAttr(item, "conversationId")
	if err != nil {
		return domain.ConversationMeta{}, err
	}
	turns, err := intAttr(item, "turns")
	if err != nil {
		return domain.ConversationMeta{}, err
	}

	// Fields added after the table went live may be absent on old records.
	draftJSON, _ := strAttr(item, "draft")
	model, _ := strAttr(item, "model")
	lastActivity, _ := strAttr(item, "lastActivity")
	listingMode := boolAttr(item, "listingMode")

	return domain.ConversationMeta{
		PK:             pk,
		SK:             sk,
		ConversationID: conversationID,
		ListingMode:    listingMode,
		DraftJSON:      draftJSON,
		Model:          model,
		LastActivity:   lastActivity,
		Turns:          turns,
	}, nil
}

func turnItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: turn.PK},
		"SK":             &types.AttributeValueMemberS{Value: turn.SK},
		"conversationId": &types.AttributeValueMemberS{Value: turn.ConversationID},
		"role":           &types.AttributeValueMemberS{Value: turn.Role},
		"content":        &types.AttributeValueMemberS{Value: turn.Content},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", turn.TTL)},
	}
}

func metaItem(meta domain.ConversationMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: meta.PK},
		"SK":             &types.AttributeValueMemberS{Value: meta.SK},
		"conversationId": &types.AttributeValueMemberS{Value: meta.ConversationID},
		"listingMode":    &types.AttributeValueMemberBOOL{Value: meta.ListingMode},
		"draft":          &types.AttributeValueMemberS{Value: meta.DraftJSON},
		"model":          &types.AttributeValueMemberS{Value: meta.Model},
		"lastActivity":   &types.AttributeValueMemberS{Value: meta.LastActivity},
		"turns":          &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.Turns)},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.TTL)},
	}
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

func boolAttr(item map[string]types.AttributeValue, key string) bool {
	v, ok := item[key]
	if !ok {
		return false
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false
	}
	return b.Value
}
