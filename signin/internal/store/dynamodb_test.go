package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cloudguard/common/models"
)

type fakeDynamoDB struct {
	puts    []*dynamodb.PutItemInput
	queries []*dynamodb.QueryInput
	pages   [][]map[string]types.AttributeValue
	err     error

	describeErr error
	created     *dynamodb.CreateTableInput
	ttl         *dynamodb.UpdateTimeToLiveInput
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := len(f.queries)
	f.queries = append(f.queries, in)

	out := &dynamodb.QueryOutput{}
	if n < len(f.pages) {
		out.Items = f.pages[n]
	}
	if n+1 < len(f.pages) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: "page-" + string(rune('a'+n))},
		}
	}
	return out, nil
}

func (f *fakeDynamoDB) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableName: in.TableName}}, nil
}

func (f *fakeDynamoDB) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.created = in
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamoDB) UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	f.ttl = in
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func item(t *testing.T, ev *models.ActivityEvent) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMapWithOptions(ev, useJSONTags)
	require.NoError(t, err)
	return av
}

func TestDynamoDBStore_Put(t *testing.T) {
	fake := &fakeDynamoDB{}
	s := NewDynamoDBStoreWithClient(fake, "", "")
	now := time.Now().Unix()

	require.NoError(t, s.Put(context.Background(), consoleLogin("evt-1", "alice", models.LoginFailure, now)))
	require.Len(t, fake.puts, 1)

	in := fake.puts[0]
	assert.Equal(t, "aws-activity", aws.ToString(in.TableName))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "evt-1"}, in.Item["id"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "IAMUser-alice"}, in.Item["userIdentity"])
	assert.IsType(t, &types.AttributeValueMemberN{}, in.Item["timestamp"])
	assert.IsType(t, &types.AttributeValueMemberN{}, in.Item["ttl"])

	detail, ok := in.Item["detail"].(*types.AttributeValueMemberM)
	require.True(t, ok)
	resp, ok := detail.Value["responseElements"].(*types.AttributeValueMemberM)
	require.True(t, ok)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Failure"}, resp.Value["ConsoleLogin"])
}

func TestDynamoDBStore_QueryDrainsPages(t *testing.T) {
	now := time.Now().Unix()
	fake := &fakeDynamoDB{
		pages: [][]map[string]types.AttributeValue{
			{
				item(t, consoleLogin("d-1", "alice", models.LoginFailure, now)),
				item(t, consoleLogin("d-2", "alice", models.LoginFailure, now-60)),
			},
			{},
			{
				item(t, consoleLogin("d-3", "alice", models.LoginFailure, now-3600)),
				item(t, consoleLogin("d-4", "alice", models.LoginSuccess, now-120)),
			},
		},
	}
	s := NewDynamoDBStoreWithClient(fake, "activity", "ByIdentity")

	got, err := s.QueryByIdentityAndWindow(context.Background(), "IAMUser-alice", now-3600, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d-1", "d-2", "d-3"}, ids(got))

	require.Len(t, fake.queries, 3)
	first := fake.queries[0]
	assert.Equal(t, "activity", aws.ToString(first.TableName))
	assert.Equal(t, "ByIdentity", aws.ToString(first.IndexName))
	assert.NotNil(t, first.KeyConditionExpression)
	assert.NotNil(t, first.FilterExpression)
	assert.False(t, aws.ToBool(first.ScanIndexForward))
	assert.Nil(t, first.ExclusiveStartKey)
	assert.NotNil(t, fake.queries[1].ExclusiveStartKey)

	var values []string
	for _, v := range first.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			values = append(values, s.Value)
		}
	}
	assert.Contains(t, values, "IAMUser-alice")
	assert.Contains(t, values, "ConsoleLogin")
	assert.Contains(t, values, "Failure")
}

func TestDynamoDBStore_Unavailable(t *testing.T) {
	fake := &fakeDynamoDB{err: &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}}
	s := NewDynamoDBStoreWithClient(fake, "", "")

	_, err := s.QueryByIdentityAndWindow(context.Background(), "IAMUser-alice", 0, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	var throttled *types.ProvisionedThroughputExceededException
	assert.True(t, errors.As(err, &throttled))
}

func TestDynamoDBStore_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "throughput exceeded", err: &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}, unavailable: true},
		{name: "request limit", err: &types.RequestLimitExceeded{Message: aws.String("account limit")}, unavailable: true},
		{name: "internal server error", err: &types.InternalServerError{Message: aws.String("oops")}, unavailable: true},
		{name: "throttling", err: &smithy.GenericAPIError{Code: "ThrottlingException", Fault: smithy.FaultClient}, unavailable: true},
		{name: "deadline", err: context.DeadlineExceeded, unavailable: true},
		{name: "validation", err: &smithy.GenericAPIError{Code: "ValidationException", Message: "bad key", Fault: smithy.FaultClient}, unavailable: false},
		{name: "missing table", err: &types.ResourceNotFoundException{Message: aws.String("no table")}, unavailable: false},
		{name: "conditional check", err: &types.ConditionalCheckFailedException{Message: aws.String("exists")}, unavailable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewDynamoDBStoreWithClient(&fakeDynamoDB{err: tt.err}, "", "")

			err := s.Put(context.Background(), &models.ActivityEvent{ID: "evt-1", UserIdentity: "IAMUser-alice"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrUnavailable))

			_, err = s.QueryByIdentityAndWindow(context.Background(), "IAMUser-alice", 0, 1)
			require.Error(t, err)
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrUnavailable))
		})
	}
}

func TestDynamoDBStore_EnsureTable(t *testing.T) {
	t.Run("creates missing table", func(t *testing.T) {
		fake := &fakeDynamoDB{describeErr: &types.ResourceNotFoundException{Message: aws.String("no table")}}
		s := NewDynamoDBStoreWithClient(fake, "", "")

		require.NoError(t, s.EnsureTable(context.Background()))
		require.NotNil(t, fake.created)
		require.Len(t, fake.created.GlobalSecondaryIndexes, 1)
		assert.Equal(t, "UserIdentityIndex", aws.ToString(fake.created.GlobalSecondaryIndexes[0].IndexName))
		require.NotNil(t, fake.ttl)
		assert.Equal(t, "ttl", aws.ToString(fake.ttl.TimeToLiveSpecification.AttributeName))
	})

	t.Run("existing table untouched", func(t *testing.T) {
		fake := &fakeDynamoDB{}
		s := NewDynamoDBStoreWithClient(fake, "", "")

		require.NoError(t, s.EnsureTable(context.Background()))
		assert.Nil(t, fake.created)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
