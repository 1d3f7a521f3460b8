// Package sns publishes messages to AWS SNS topics with their metadata as
// message attributes, so SNS subscription filter policies apply.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"

	"github.com/telhawk-systems/cloudguard/common/messaging"
)

// SNS attribute data types.
const (
	DataTypeString      = "String"
	DataTypeStringArray = "String.Array"
)

// API is the subset of the SNS client used by Publisher.
type API interface {
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// Config configures a Publisher.
type Config struct {
	Region string

	// TopicARN receives messages whose subject has no entry in Topics.
	TopicARN string

	// Topics maps message subjects to topic ARNs.
	Topics map[string]string

	// Endpoint overrides the SNS endpoint, e.g. for localstack.
	Endpoint string

	// ArrayAttributes are always sent as String.Array, even with one value.
	ArrayAttributes []string
}

// Publisher publishes messaging.Message values to SNS.
type Publisher struct {
	client      API
	defaultARN  string
	topics      map[string]string
	arrayFields map[string]bool
}

// NewClient loads the default AWS configuration chain and returns an SNS
// client for region, optionally pointed at endpoint.
func NewClient(ctx context.Context, region, endpoint string) (*awssns.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return awssns.NewFromConfig(awsCfg, func(o *awssns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// New builds a Publisher on a client from NewClient.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	client, err := NewClient(ctx, cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return NewPublisher(client, cfg)
}

// NewPublisher builds a Publisher around an existing client.
func NewPublisher(client API, cfg Config) (*Publisher, error) {
	if cfg.TopicARN == "" && len(cfg.Topics) == 0 {
		return nil, errors.New("sns: a topic ARN is required")
	}
	arrays := make(map[string]bool, len(cfg.ArrayAttributes))
	for _, k := range cfg.ArrayAttributes {
		arrays[k] = true
	}
	return &Publisher{
		client:      client,
		defaultARN:  cfg.TopicARN,
		topics:      cfg.Topics,
		arrayFields: arrays,
	}, nil
}

func (p *Publisher) topicFor(subject string) (string, error) {
	if arn, ok := p.topics[subject]; ok {
		return arn, nil
	}
	if p.defaultARN == "" {
		return "", fmt.Errorf("sns: no topic for subject %q", subject)
	}
	return p.defaultARN, nil
}

// PublishMsg publishes msg.Data as the SNS message body and msg.Metadata as
// message attributes.
func (p *Publisher) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	arn, err := p.topicFor(msg.Subject)
	if err != nil {
		return messaging.Permanent(err)
	}
	attrs, err := p.attributes(msg.Metadata)
	if err != nil {
		return messaging.Permanent(err)
	}

	_, err = p.client.Publish(ctx, &awssns.PublishInput{
		TopicArn:          aws.String(arn),
		Message:           aws.String(string(msg.Data)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return publishError(err)
	}
	return nil
}

// publishError marks client faults other than throttling as permanent, so
// callers stop retrying requests SNS will never accept.
func publishError(err error) error {
	err = fmt.Errorf("sns publish: %w", err)
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorFault() != smithy.FaultClient {
		return err
	}
	switch apiErr.ErrorCode() {
	case "Throttled", "ThrottlingException", "KMSThrottling":
		return err
	}
	return messaging.Permanent(err)
}

// Publish publishes data without attributes.
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

// Close is a no-op; the SNS client holds no connections of its own.
func (p *Publisher) Close() error {
	return nil
}

func (p *Publisher) attributes(md messaging.Metadata) (map[string]types.MessageAttributeValue, error) {
	if len(md) == 0 {
		return nil, nil
	}
	attrs := make(map[string]types.MessageAttributeValue, len(md))
	for k, vals := range md {
		if len(vals) == 0 {
			continue
		}
		if len(vals) == 1 && !p.arrayFields[k] {
			attrs[k] = types.MessageAttributeValue{
				DataType:    aws.String(DataTypeString),
				StringValue: aws.String(vals[0]),
			}
			continue
		}
		encoded, err := json.Marshal(vals)
		if err != nil {
			return nil, fmt.Errorf("encode attribute %s: %w", k, err)
		}
		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String(DataTypeStringArray),
			StringValue: aws.String(string(encoded)),
		}
	}
	return attrs, nil
}

// DecodeAttribute converts an SNS attribute back into metadata values.
// String.Array values are JSON arrays; anything else is a single value.
func DecodeAttribute(dataType, value string) ([]string, error) {
	if dataType != DataTypeStringArray {
		return []string{value}, nil
	}
	var raw []any
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, fmt.Errorf("decode %s attribute: %w", DataTypeStringArray, err)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprint(v))
	}
	return out, nil
}
