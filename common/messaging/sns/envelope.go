package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/telhawk-systems/cloudguard/common/messaging"
)

// Envelope types delivered to HTTP(S) subscriptions.
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// Attribute is one message attribute inside an Envelope.
type Attribute struct {
	Type  string `json:"Type"`
	Value string `json:"Value"`
}

// Envelope is the JSON document SNS posts to HTTP(S) endpoints.
type Envelope struct {
	Type              string               `json:"Type"`
	MessageID         string               `json:"MessageId"`
	TopicARN          string               `json:"TopicArn"`
	Subject           string               `json:"Subject,omitempty"`
	Message           string               `json:"Message"`
	Timestamp         time.Time            `json:"Timestamp"`
	Token             string               `json:"Token,omitempty"`
	SubscribeURL      string               `json:"SubscribeURL,omitempty"`
	UnsubscribeURL    string               `json:"UnsubscribeURL,omitempty"`
	MessageAttributes map[string]Attribute `json:"MessageAttributes,omitempty"`
}

// ParseEnvelope decodes an SNS HTTP delivery.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode sns envelope: %w", err)
	}
	if env.Type == "" {
		return nil, errors.New("decode sns envelope: missing Type")
	}
	return &env, nil
}

// ToMessage converts a Notification into a messaging.Message. String.Array
// attributes are expanded into multiple metadata values.
func (e *Envelope) ToMessage() (*messaging.Message, error) {
	md := make(messaging.Metadata, len(e.MessageAttributes))
	for name, attr := range e.MessageAttributes {
		values, err := DecodeAttribute(attr.Type, attr.Value)
		if err != nil {
			return nil, err
		}
		md[name] = values
	}
	return &messaging.Message{
		Subject:   e.TopicARN,
		Data:      []byte(e.Message),
		Metadata:  md,
		Timestamp: e.Timestamp,
	}, nil
}

// SubscriptionAPI is the subset of the SNS client used to manage
// subscriptions.
type SubscriptionAPI interface {
	SetSubscriptionAttributes(ctx context.Context, params *awssns.SetSubscriptionAttributesInput, optFns ...func(*awssns.Options)) (*awssns.SetSubscriptionAttributesOutput, error)
}

// ApplyFilterPolicy installs p as the filter policy of subscriptionARN, so
// SNS drops non-matching messages before delivery.
func ApplyFilterPolicy(ctx context.Context, client SubscriptionAPI, subscriptionARN string, p messaging.FilterPolicy) error {
	policy, err := p.SNSJSON()
	if err != nil {
		return fmt.Errorf("encode filter policy: %w", err)
	}
	_, err = client.SetSubscriptionAttributes(ctx, &awssns.SetSubscriptionAttributesInput{
		SubscriptionArn: aws.String(subscriptionARN),
		AttributeName:   aws.String("FilterPolicy"),
		AttributeValue:  aws.String(policy),
	})
	if err != nil {
		return fmt.Errorf("set filter policy on %s: %w", subscriptionARN, err)
	}
	return nil
}
