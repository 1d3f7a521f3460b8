package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/telhawk-systems/cloudguard/common/database"
	"github.com/telhawk-systems/cloudguard/common/models"
)

// Table layout defaults.
const (
	DefaultDynamoDBTable = "aws-activity"
	DefaultIdentityIndex = "UserIdentityIndex"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
type DynamoDBAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// DynamoDBConfig selects the table and the identity index.
type DynamoDBConfig struct {
	Table    string `mapstructure:"table"`
	Index    string `mapstructure:"index"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// DynamoDBStore keys items by id and timestamp. Windowed queries go through
// a global secondary index on (userIdentity, timestamp) and the table's ttl
// attribute drives expiry.
type DynamoDBStore struct {
	client DynamoDBAPI
	table  string
	index  string
}

// NewDynamoDBStore builds a client from the default AWS credential chain.
func NewDynamoDBStore(ctx context.Context, cfg DynamoDBConfig) (*DynamoDBStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewDynamoDBStoreWithClient(client, cfg.Table, cfg.Index), nil
}

// NewDynamoDBStoreWithClient wraps an existing client.
func NewDynamoDBStoreWithClient(client DynamoDBAPI, table, index string) *DynamoDBStore {
	if table == "" {
		table = DefaultDynamoDBTable
	}
	if index == "" {
		index = DefaultIdentityIndex
	}
	return &DynamoDBStore{client: client, table: table, index: index}
}

func useJSONTags(o *attributevalue.EncoderOptions) {
	o.TagKey = "json"
}

func decodeJSONTags(o *attributevalue.DecoderOptions) {
	o.TagKey = "json"
}

func (s *DynamoDBStore) Put(ctx context.Context, ev *models.ActivityEvent) error {
	item, err := attributevalue.MarshalMapWithOptions(ev, useJSONTags)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return dynamoError("dynamodb put", err)
	}
	return nil
}

func (s *DynamoDBStore) QueryByIdentityAndWindow(ctx context.Context, identity string, from, to int64) ([]models.ActivityEvent, error) {
	keyCond := expression.Key("userIdentity").Equal(expression.Value(identity)).
		And(expression.Key("timestamp").Between(expression.Value(from), expression.Value(to)))
	filter := expression.Name("eventName").Equal(expression.Value(models.EventConsoleLogin)).
		And(expression.Name("detail.responseElements.ConsoleLogin").Equal(expression.Value(models.LoginFailure)))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("build query expression: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(s.index),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	})

	var out []models.ActivityEvent
	for paginator.HasMorePages() {
		page, err := s.nextPage(ctx, paginator)
		if err != nil {
			return nil, err
		}
		var events []models.ActivityEvent
		if err := attributevalue.UnmarshalListOfMapsWithOptions(page.Items, &events, decodeJSONTags); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		out = append(out, events...)
	}
	return failedInWindow(out, identity, from, to), nil
}

func (s *DynamoDBStore) nextPage(ctx context.Context, p *dynamodb.QueryPaginator) (*dynamodb.QueryOutput, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	page, err := p.NextPage(ctx)
	if err != nil {
		return nil, dynamoError("dynamodb query", err)
	}
	return page, nil
}

// EnsureTable creates the table, its identity index and ttl setting when the
// table does not exist yet.
func (s *DynamoDBStore) EnsureTable(ctx context.Context) error {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return dynamoError("dynamodb describe", err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("timestamp"), AttributeType: types.ScalarAttributeTypeN},
			{AttributeName: aws.String("userIdentity"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("timestamp"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String(s.index),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("userIdentity"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("timestamp"), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{
				ProjectionType:   types.ProjectionTypeInclude,
				NonKeyAttributes: []string{"eventName", "time", "ttl", "detail"},
			},
		}},
	})
	if err != nil {
		return dynamoError("dynamodb create table", err)
	}

	_, err = s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(s.table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String("ttl"),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return dynamoError("dynamodb update ttl", err)
	}
	return nil
}

func (s *DynamoDBStore) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}); err != nil {
		return dynamoError("dynamodb describe", err)
	}
	return nil
}

func (s *DynamoDBStore) Close() error {
	return nil
}

// dynamoError maps throttling, server faults, timeouts and connection
// failures to ErrUnavailable and everything else to a plain error.
func dynamoError(op string, err error) error {
	if dynamoTransient(err) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func dynamoTransient(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ProvisionedThroughputExceededException", "RequestLimitExceeded",
			"LimitExceededException", "InternalServerError", "ServiceUnavailable":
			return true
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return true
		}
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) && (status.HTTPStatusCode() == http.StatusTooManyRequests || status.HTTPStatusCode() >= 500) {
		return true
	}

	var sendErr *smithyhttp.RequestSendError
	var netErr net.Error
	return errors.As(err, &sendErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}
