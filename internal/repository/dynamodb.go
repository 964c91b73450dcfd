// Package repository stores per-chat conversation history, either in process
// memory or durably in DynamoDB.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"chat-relay/internal/domain"
)

const (
	skPrefixTurn   = "TURN#"
	skMeta         = "META#"
	statusComplete = "complete"
	ttlDuration    = 30 * 24 * time.Hour
)

// Store is the conversation history surface consumed by the relay.
type Store interface {
	RecentTurns(ctx context.Context, chatKey string, limit int) ([]domain.Turn, error)
	SaveTurn(ctx context.Context, chatKey, question, answer string) error
}

// dynamodbAPI is the minimal DynamoDB interface required by DynamoDB.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoDB stores conversation turns in a single table keyed by chat.
type DynamoDB struct {
	api       dynamodbAPI
	tableName string
}

func NewDynamoDB(api dynamodbAPI, tableName string) (*DynamoDB, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoDB{api: api, tableName: tableName}, nil
}

func chatPK(chatKey string) string {
	return "CHAT#" + chatKey
}

func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano)
}

func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// RecentTurns queries the newest TURN# items for a chat and returns them in
// chronological order.
func (d *DynamoDB) RecentTurns(ctx context.Context, chatKey string, limit int) ([]domain.Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: chatPK(chatKey)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		// Read newest first so the limit keeps the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := d.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentTurns query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentTurns unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// SaveTurn writes the completed turn and refreshed chat metadata in one
// transaction.
func (d *DynamoDB) SaveTurn(ctx context.Context, chatKey, question, answer string) error {
	if strings.TrimSpace(chatKey) == "" {
		return errors.New("repository: SaveTurn: chat key is required")
	}

	now := time.Now().UTC()
	turn := domain.Turn{
		PK:       chatPK(chatKey),
		SK:       turnSK(now),
		TurnID:   uuid.NewString(),
		ChatKey:  chatKey,
		Question: question,
		Answer:   answer,
		Status:   statusComplete,
		TTL:      ttlValue(),
	}
	meta := domain.ChatMeta{
		PK:           chatPK(chatKey),
		SK:           skMeta,
		ChatKey:      chatKey,
		LastActivity: now.Format(time.RFC3339),
		TTL:          ttlValue(),
	}

	_, err := d.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(d.tableName),
					Item:                turnItem(turn),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(d.tableName),
					Item:      metaItem(meta),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Turn{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Turn{}, err
	}
	question, err := strAttr(item, "question")
	if err != nil {
		return domain.Turn{}, err
	}
	answer, _ := strAttr(item, "answer") // allow empty
	status, _ := strAttr(item, "status") // allow empty
	turnID, _ := strAttr(item, "turnId") // allow empty

	return domain.Turn{
		PK:       pk,
		SK:       sk,
		TurnID:   turnID,
		Question: question,
		Answer:   answer,
		Status:   status,
	}, nil
}

func turnItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":       &types.AttributeValueMemberS{Value: turn.PK},
		"SK":       &types.AttributeValueMemberS{Value: turn.SK},
		"turnId":   &types.AttributeValueMemberS{Value: turn.TurnID},
		"chatKey":  &types.AttributeValueMemberS{Value: turn.ChatKey},
		"question": &types.AttributeValueMemberS{Value: turn.Question},
		"answer":   &types.AttributeValueMemberS{Value: turn.Answer},
		"status":   &types.AttributeValueMemberS{Value: turn.Status},
		"ttl":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", turn.TTL)},
	}
}

func metaItem(meta domain.ChatMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: meta.PK},
		"SK":           &types.AttributeValueMemberS{Value: meta.SK},
		"chatKey":      &types.AttributeValueMemberS{Value: meta.ChatKey},
		"lastActivity": &types.AttributeValueMemberS{Value: meta.LastActivity},
		"ttl":          &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.TTL)},
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
