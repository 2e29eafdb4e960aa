package conversation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/heitor/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// conversationItem is the DynamoDB row; the aggregate itself travels as an
// opaque JSON document.
type conversationItem struct {
	PhoneNumber    string `dynamodbav:"phoneNumber"`
	ConversationID string `dynamodbav:"conversationId"`
	LastActivity   int64  `dynamodbav:"lastActivity"`
	Document       string `dynamodbav:"document"`
	UpdatedAt      string `dynamodbav:"updatedAt"`
	Version        int64  `dynamodbav:"version"`
}

// DynamoStore persists conversations to a DynamoDB table keyed by phoneNumber.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ DocumentStore = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{client: client, tableName: tableName, logger: logger}
}

func (s *DynamoStore) Load(ctx context.Context, phone string) (*Conversation, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            map[string]types.AttributeValue{"phoneNumber": &types.AttributeValueMemberS{Value: phone}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storageErr("load", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return s.decodeItem(out.Item)
}

func (s *DynamoStore) Insert(ctx context.Context, conv *Conversation) error {
	item, err := s.encodeItem(conv)
	if err != nil {
		return storageErr("insert", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(phoneNumber)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrDuplicateKey
		}
		return storageErr("insert", err)
	}
	return nil
}

// Save is a conditional put on the stored version. The old item comes back on
// a failed check so a missing row can be told apart from a lost race.
func (s *DynamoStore) Save(ctx context.Context, conv *Conversation, prevVersion int64) error {
	item, err := s.encodeItem(conv)
	if err != nil {
		return storageErr("save", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String(saveCondition),
		ExpressionAttributeNames: map[string]string{
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberN{Value: strconv.FormatInt(prevVersion, 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return ErrNotFound
			}
			s.logger.Debug("conversation save lost version race", "phone", conv.PhoneNumber, "expected_version", prevVersion)
			return ErrConflict
		}
		return storageErr("save", err)
	}
	return nil
}

const saveCondition = "attribute_exists(phoneNumber) AND #version = :prev"

func (s *DynamoStore) encodeItem(conv *Conversation) (map[string]types.AttributeValue, error) {
	data, err := encodeDocument(conv)
	if err != nil {
		return nil, err
	}
	return attributevalue.MarshalMap(conversationItem{
		PhoneNumber:    conv.PhoneNumber,
		ConversationID: conv.ID,
		LastActivity:   conv.LastActivity.UnixMilli(),
		Document:       string(data),
		UpdatedAt:      conv.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Version:        conv.Version,
	})
}

func (s *DynamoStore) FindByActivity(ctx context.Context, start, end time.Time) ([]*Conversation, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("lastActivity BETWEEN :start AND :end"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":start": &types.AttributeValueMemberN{Value: strconv.FormatInt(start.UnixMilli(), 10)},
			":end":   &types.AttributeValueMemberN{Value: strconv.FormatInt(end.UnixMilli(), 10)},
		},
	})

	var out []*Conversation
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storageErr("find by activity", err)
		}
		pages++
		for _, item := range page.Items {
			conv, err := s.decodeItem(item)
			if err != nil {
				return nil, err
			}
			if inWindow(conv.LastActivity, start, end) {
				out = append(out, conv)
			}
		}
	}
	s.logger.Debug("conversation activity scan complete", "pages", pages, "matches", len(out))
	return out, nil
}

func (s *DynamoStore) decodeItem(item map[string]types.AttributeValue) (*Conversation, error) {
	var row conversationItem
	if err := attributevalue.UnmarshalMap(item, &row); err != nil {
		return nil, storageErr("decode item", err)
	}
	conv, err := decodeDocument([]byte(row.Document))
	if err != nil {
		return nil, storageErr("decode item", err)
	}
	return conv, nil
}
