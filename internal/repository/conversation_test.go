package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landsale-agent/internal/domain"
)

type fakeDynamo struct {
	getOut        *dynamodb.GetItemOutput
	getErr        error
	putErr        error
	queryOut      *dynamodb.QueryOutput
	queryErr      error
	batchOutQueue []*dynamodb.BatchWriteItemOutput
	batchErr      error
	lastGetInput  *dynamodb.GetItemInput
	putInputs     []*dynamodb.PutItemInput
	lastQueryIn   *dynamodb.QueryInput
	batchInputs   []*dynamodb.BatchWriteItemInput
	queryOutQueue []*dynamodb.QueryOutput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	if len(f.queryOutQueue) > 0 {
		out := f.queryOutQueue[0]
		f.queryOutQueue = f.queryOutQueue[1:]
		return out, f.queryErr
	}
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batchInputs = append(f.batchInputs, in)
	if len(f.batchOutQueue) > 0 {
		out := f.batchOutQueue[0]
		f.batchOutQueue = f.batchOutQueue[1:]
		return out, f.batchErr
	}
	return &dynamodb.BatchWriteItemOutput{}, f.batchErr
}

func (f *fakeDynamo) lastPut() *dynamodb.PutItemInput {
	if len(f.putInputs) == 0 {
		return nil
	}
	return f.putInputs[len(f.putInputs)-1]
}

func makeTurnItem(pk, sk, role, content string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":      &types.AttributeValueMemberS{Value: pk},
		"SK":      &types.AttributeValueMemberS{Value: sk},
		"role":    &types.AttributeValueMemberS{Value: role},
		"content": &types.AttributeValueMemberS{Value: content},
	}
}

func makeMetaItem(conversationID string, listingMode bool, draft, model string, turns int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(conversationID)},
		"SK":             &types.AttributeValueMemberS{Value: skMeta},
		"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		"listingMode":    &types.AttributeValueMemberBOOL{Value: listingMode},
		"draft":          &types.AttributeValueMemberS{Value: draft},
		"model":          &types.AttributeValueMemberS{Value: model},
		"turns":          &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", turns)},
	}
}

func mustConversationStore(t *testing.T, db *fakeDynamo) *ConversationStore {
	t.Helper()
	s, err := NewConversationStore(db, "test-table")
	require.NoError(t, err)
	return s
}

func TestNewConversationStoreValidation(t *testing.T) {
	_, err := NewConversationStore(nil, "t")
	assert.Error(t, err)
	_, err = NewConversationStore(&fakeDynamo{}, "  ")
	assert.Error(t, err)
}

func TestAppendTurn(t *testing.T) {
	db := &fakeDynamo{}
	s := mustConversationStore(t, db)

	require.NoError(t, s.AppendTurn(context.Background(), "abc", domain.RoleUser, "hello"))

	put := db.lastPut()
	require.NotNil(t, put)
	assert.Equal(t, "test-table", *put.TableName)
	assert.Contains(t, *put.ConditionExpression, "attribute_not_exists")

	pk := put.Item["PK"].(*types.AttributeValueMemberS).Value
	sk := put.Item["SK"].(*types.AttributeValueMemberS).Value
	assert.Equal(t, "CONV#abc", pk)
	assert.True(t, len(sk) > len(skPrefixMsg) && sk[:len(skPrefixMsg)] == skPrefixMsg)
	assert.Equal(t, domain.RoleUser, put.Item["role"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "hello", put.Item["content"].(*types.AttributeValueMemberS).Value)
	assert.NotEqual(t, "0", put.Item["ttl"].(*types.AttributeValueMemberN).Value)
}

func TestAppendTurnRequiresConversationID(t *testing.T) {
	s := mustConversationStore(t, &fakeDynamo{})
	assert.Error(t, s.AppendTurn(context.Background(), "  ", domain.RoleUser, "hello"))
}

func TestGetHistoryReversesToChronological(t *testing.T) {
	// Query returns newest first; callers get chronological order.
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		makeTurnItem("CONV#abc", "MSG#2026-01-02T00:00:00Z", domain.RoleAssistant, "second"),
		makeTurnItem("CONV#abc", "MSG#2026-01-01T00:00:00Z", domain.RoleUser, "first"),
	}}}
	s := mustConversationStore(t, db)

	turns, err := s.GetHistory(context.Background(), "abc", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)

	require.NotNil(t, db.lastQueryIn)
	assert.False(t, *db.lastQueryIn.ScanIndexForward)
	assert.Equal(t, int32(10), *db.lastQueryIn.Limit)
}

func TestGetHistoryQueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("throttled")}
	s := mustConversationStore(t, db)
	_, err := s.GetHistory(context.Background(), "abc", 10)
	assert.ErrorContains(t, err, "throttled")
}

func TestGetMeta(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{
		Item: makeMetaItem("abc", true, `{"district":"Kandy"}`, "gpt-4", 3),
	}}
	s := mustConversationStore(t, db)

	meta, found, err := s.GetMeta(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc", meta.ConversationID)
	assert.True(t, meta.ListingMode)
	assert.Equal(t, `{"district":"Kandy"}`, meta.DraftJSON)
	assert.Equal(t, "gpt-4", meta.Model)
	assert.Equal(t, 3, meta.Turns)

	require.NotNil(t, db.lastGetInput)
	assert.True(t, *db.lastGetInput.ConsistentRead)
}

func TestGetMetaNotFound(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	s := mustConversationStore(t, db)
	_, found, err := s.GetMeta(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetMetaToleratesLegacyRecords(t *testing.T) {
	// Records written before listingMode/draft/model existed.
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: "CONV#abc"},
		"SK":             &types.AttributeValueMemberS{Value: skMeta},
		"conversationId": &types.AttributeValueMemberS{Value: "abc"},
		"turns":          &types.AttributeValueMemberN{Value: "2"},
	}}}
	s := mustConversationStore(t, db)

	meta, found, err := s.GetMeta(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, meta.ListingMode)
	assert.Empty(t, meta.DraftJSON)
	assert.Empty(t, meta.Model)
	assert.Equal(t, 2, meta.Turns)
}

func TestSaveMetaFillsKeysAndTTL(t *testing.T) {
	db := &fakeDynamo{}
	s := mustConversationStore(t, db)

	err := s.SaveMeta(context.Background(), domain.ConversationMeta{
		ConversationID: "abc",
		ListingMode:    true,
		DraftJSON:      `{"price":100}`,
		Model:          "claude-3-haiku",
		Turns:          1,
	})
	require.NoError(t, err)

	put := db.lastPut()
	require.NotNil(t, put)
	assert.Equal(t, "CONV#abc", put.Item["PK"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, skMeta, put.Item["SK"].(*types.AttributeValueMemberS).Value)
	assert.True(t, put.Item["listingMode"].(*types.AttributeValueMemberBOOL).Value)
	assert.NotEmpty(t, put.Item["lastActivity"].(*types.AttributeValueMemberS).Value)
	assert.NotEqual(t, "0", put.Item["ttl"].(*types.AttributeValueMemberN).Value)
}

func TestResetConversationDeletesTurnsAndClearsMeta(t *testing.T) {
	db := &fakeDynamo{
		getOut: &dynamodb.GetItemOutput{
			Item: makeMetaItem("abc", true, `{"district":"Kandy"}`, "gpt-4", 5),
		},
		queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			makeTurnItem("CONV#abc", "MSG#1", domain.RoleUser, "a"),
			makeTurnItem("CONV#abc", "MSG#2", domain.RoleAssistant, "b"),
		}},
	}
	s := mustConversationStore(t, db)

	require.NoError(t, s.ResetConversation(context.Background(), "abc"))

	require.Len(t, db.batchInputs, 1)
	requests := db.batchInputs[0].RequestItems["test-table"]
	require.Len(t, requests, 2)
	assert.NotNil(t, requests[0].DeleteRequest)

	// Meta rewritten with everything cleared except the model.
	put := db.lastPut()
	require.NotNil(t, put)
	assert.Equal(t, "gpt-4", put.Item["model"].(*types.AttributeValueMemberS).Value)
	assert.False(t, put.Item["listingMode"].(*types.AttributeValueMemberBOOL).Value)
	assert.Empty(t, put.Item["draft"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "0", put.Item["turns"].(*types.AttributeValueMemberN).Value)
}

func TestResetConversationUnknownConversation(t *testing.T) {
	db := &fakeDynamo{
		getOut:   &dynamodb.GetItemOutput{},
		queryOut: &dynamodb.QueryOutput{},
	}
	s := mustConversationStore(t, db)

	require.NoError(t, s.ResetConversation(context.Background(), "nope"))
	assert.Empty(t, db.batchInputs)
	assert.Empty(t, db.putInputs)
}

func TestResetConversationRetriesUnprocessed(t *testing.T) {
	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "CONV#abc"},
		"SK": &types.AttributeValueMemberS{Value: "MSG#1"},
	}
	db := &fakeDynamo{
		getOut: &dynamodb.GetItemOutput{},
		queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			makeTurnItem("CONV#abc", "MSG#1", domain.RoleUser, "a"),
		}},
		// First batch reports an unprocessed delete; the second succeeds.
		batchOutQueue: []*dynamodb.BatchWriteItemOutput{
			{UnprocessedItems: map[string][]types.WriteRequest{
				"test-table": {{DeleteRequest: &types.DeleteRequest{Key: key}}},
			}},
			{},
		},
	}
	s := mustConversationStore(t, db)

	require.NoError(t, s.ResetConversation(context.Background(), "abc"))
	require.Len(t, db.batchInputs, 2)
	retried := db.batchInputs[1].RequestItems["test-table"]
	require.Len(t, retried, 1)
	assert.Equal(t, key, retried[0].DeleteRequest.Key)
}
