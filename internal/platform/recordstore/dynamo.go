package recordstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore is a DynamoDB-backed Store. Users and documents live in two
// tables; fingerprint lookups go through a global secondary index on the
// documents table keyed by (user_id, doc_hash).
type DynamoStore struct {
	client           DynamoAPI
	usersTable       string
	documentsTable   string
	fingerprintIndex string
}

// NewDynamoStore creates a DynamoStore over the given client and table names.
func NewDynamoStore(client DynamoAPI, usersTable, documentsTable, fingerprintIndex string) *DynamoStore {
	return &DynamoStore{
		client:           client,
		usersTable:       usersTable,
		documentsTable:   documentsTable,
		fingerprintIndex: fingerprintIndex,
	}
}

func (s *DynamoStore) PutUser(ctx context.Context, u *UserRecord) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.usersTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put user %s: %w", u.UserID, err)
	}
	return nil
}

func (s *DynamoStore) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.usersTable),
		Key: map[string]ddbtypes.AttributeValue{
			"user_id": &ddbtypes.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrUserNotFound
	}
	var u UserRecord
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user item: %w", err)
	}
	return &u, nil
}

func (s *DynamoStore) GetUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	// Usernames equal user ids in this scheme, so a key lookup suffices.
	u, err := s.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if u.Username != username {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *DynamoStore) IncrementDocumentCount(ctx context.Context, userID string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.usersTable),
		Key: map[string]ddbtypes.AttributeValue{
			"user_id": &ddbtypes.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression: aws.String("ADD document_count :one"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":one": &ddbtypes.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return fmt.Errorf("increment document count for %s: %w", userID, err)
	}
	return nil
}

func (s *DynamoStore) PutDocument(ctx context.Context, d *DocumentRecord) error {
	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return fmt.Errorf("marshal document item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.documentsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put document %s: %w", d.DocumentID, err)
	}
	return nil
}

func (s *DynamoStore) ListDocuments(ctx context.Context, userID string, limit int) ([]*DocumentRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.documentsTable),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":uid": &ddbtypes.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
	}
	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", userID, err)
	}
	var docs []*DocumentRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &docs); err != nil {
		return nil, fmt.Errorf("unmarshal document items: %w", err)
	}
	// The table's sort key is the document id, so order by upload time here.
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UploadTimestamp > docs[j].UploadTimestamp
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *DynamoStore) FindByFingerprint(ctx context.Context, userID, fingerprint string) ([]*DocumentRecord, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.documentsTable),
		IndexName:              aws.String(s.fingerprintIndex),
		KeyConditionExpression: aws.String("user_id = :uid AND doc_hash = :hash"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":uid":  &ddbtypes.AttributeValueMemberS{Value: userID},
			":hash": &ddbtypes.AttributeValueMemberS{Value: fingerprint},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fingerprint query for %s: %v", ErrIndexUnavailable, userID, err)
	}
	var docs []*DocumentRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &docs); err != nil {
		return nil, fmt.Errorf("unmarshal fingerprint items: %w", err)
	}
	return docs, nil
}
