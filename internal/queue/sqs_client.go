package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsAPI is the slice of SQS the queue uses; tests substitute a mock.
type sqsAPI interface {
	SendMessage(ctx context.Context, input *sqsSendInput) (*sqsSendOutput, error)
	ReceiveMessage(ctx context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error)
	DeleteMessage(ctx context.Context, input *sqsDeleteInput) error
	// QueueCounts returns the approximate visible and delayed message counts.
	QueueCounts(ctx context.Context, queueURL string) (visible, delayed int64, err error)
}

type sqsSendInput struct {
	QueueURL     string
	MessageBody  string
	DelaySeconds int32
}

type sqsSendOutput struct {
	MessageID string
}

type sqsReceiveInput struct {
	QueueURL            string
	MaxNumberOfMessages int32
	WaitTimeSeconds     int32
	VisibilityTimeout   int32
}

type sqsReceiveOutput struct {
	Messages []sqsReceivedMessage
}

type sqsReceivedMessage struct {
	MessageID     string
	ReceiptHandle string
	Body          string
}

type sqsDeleteInput struct {
	QueueURL      string
	ReceiptHandle string
}

// sdkSQS adapts *sqs.Client to sqsAPI.
type sdkSQS struct {
	client *sqs.Client
}

// newAWSSQSClient loads the default AWS credential chain for region. A
// non-empty endpoint targets an SQS-compatible server such as ElasticMQ.
func newAWSSQSClient(region, endpoint string) (*sdkSQS, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &sdkSQS{client: client}, nil
}

func (c *sdkSQS) SendMessage(ctx context.Context, in *sqsSendInput) (*sqsSendOutput, error) {
	out, err := c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(in.QueueURL),
		MessageBody:  aws.String(in.MessageBody),
		DelaySeconds: in.DelaySeconds,
	})
	if err != nil {
		return nil, err
	}
	return &sqsSendOutput{MessageID: aws.ToString(out.MessageId)}, nil
}

func (c *sdkSQS) ReceiveMessage(ctx context.Context, in *sqsReceiveInput) (*sqsReceiveOutput, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(in.QueueURL),
		MaxNumberOfMessages: in.MaxNumberOfMessages,
		WaitTimeSeconds:     in.WaitTimeSeconds,
		VisibilityTimeout:   in.VisibilityTimeout,
	})
	if err != nil {
		return nil, err
	}

	res := &sqsReceiveOutput{Messages: make([]sqsReceivedMessage, 0, len(out.Messages))}
	for _, m := range out.Messages {
		res.Messages = append(res.Messages, sqsReceivedMessage{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		})
	}
	return res, nil
}

func (c *sdkSQS) DeleteMessage(ctx context.Context, in *sqsDeleteInput) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(in.QueueURL),
		ReceiptHandle: aws.String(in.ReceiptHandle),
	})
	return err
}

func (c *sdkSQS) QueueCounts(ctx context.Context, queueURL string) (int64, int64, error) {
	out, err := c.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
		},
	})
	if err != nil {
		return 0, 0, err
	}
	visible, _ := strconv.ParseInt(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)], 10, 64)
	delayed, _ := strconv.ParseInt(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessagesDelayed)], 10, 64)
	return visible, delayed, nil
}
