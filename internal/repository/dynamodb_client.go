// Package repository adapts a single DynamoDB table to the gateway's
// storage roles: usage counters, the exchange audit log, session
// configuration, and reference content blocks.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/ratelimit"
)

const (
	skUsagePrefix   = "USAGE#"
	skMsgPrefix     = "MSG#"
	skContentPrefix = "CONTENT#"
	skConfig        = "CONFIG#"

	contentBeginMarker = "=== REFERENCE CONTENT ==="
	contentEndMarker   = "=== END REFERENCE CONTENT ==="
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps one DynamoDB table holding all gateway state. It satisfies
// ratelimit.UsageStore and the usecase SessionProvider, ContentProvider and
// ConversationLog contracts.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a repository Client for the given table.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func sessionPK(sessionID int64) string {
	return "SESSION#" + strconv.FormatInt(sessionID, 10)
}

func usageSK(subjectID string) string {
	return skUsagePrefix + subjectID
}

func msgSK(ts time.Time, role domain.Role) string {
	return skMsgPrefix + ts.UTC().Format(time.RFC3339Nano) + "#" + string(role)
}

// usageTTL returns the expiry timestamp DynamoDB uses to purge idle
// counters, matching the limiter's retention horizon.
func usageTTL(lastSeen time.Time) int64 {
	return lastSeen.Add(ratelimit.RetentionHorizon).Unix()
}

// ---- ratelimit.UsageStore ----

// Get reads a subject's usage counter. Absence is reported through the
// found flag so a counter purged mid-request reads as a first request.
func (c *Client) Get(ctx context.Context, sessionID int64, subjectID string) (domain.UsageCounter, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: usageSK(subjectID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.UsageCounter{}, false, fmt.Errorf("repository: Get usage: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.UsageCounter{}, false, nil
	}

	count, err := intAttr(out.Item, "messageCount")
	if err != nil {
		return domain.UsageCounter{}, false, fmt.Errorf("repository: Get usage decode: %w", err)
	}
	windowStart, err := unixAttr(out.Item, "windowStart")
	if err != nil {
		return domain.UsageCounter{}, false, fmt.Errorf("repository: Get usage decode: %w", err)
	}
	lastSeen, err := unixAttr(out.Item, "lastSeen")
	if err != nil {
		return domain.UsageCounter{}, false, fmt.Errorf("repository: Get usage decode: %w", err)
	}
	return domain.UsageCounter{MessageCount: count, WindowStart: windowStart, LastSeen: lastSeen}, true, nil
}

// Put writes a subject's usage counter with a refreshed TTL.
func (c *Client) Put(ctx context.Context, sessionID int64, subjectID string, counter domain.UsageCounter) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":           &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK":           &types.AttributeValueMemberS{Value: usageSK(subjectID)},
			"messageCount": &types.AttributeValueMemberN{Value: strconv.Itoa(counter.MessageCount)},
			"windowStart":  &types.AttributeValueMemberN{Value: strconv.FormatInt(counter.WindowStart.Unix(), 10)},
			"lastSeen":     &types.AttributeValueMemberN{Value: strconv.FormatInt(counter.LastSeen.Unix(), 10)},
			"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(usageTTL(counter.LastSeen), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Put usage: %w", err)
	}
	return nil
}

// Sweep is a no-op: every usage item carries a ttl attribute and DynamoDB
// expiry removes idle counters without a scan.
func (c *Client) Sweep(_ context.Context, _ time.Time) error {
	return nil
}

// ---- usecase.ConversationLog ----

// AppendExchange persists the user message and assistant reply of one
// completed request in a single transaction, so a write failure never
// leaves a user record without its paired reply. Records are keyed by
// timestamp and role so the two never collide.
func (c *Client) AppendExchange(ctx context.Context, user, assistant domain.Exchange) error {
	if user.SubjectID == "" || assistant.SubjectID == "" {
		return errors.New("repository: AppendExchange: subject id is required")
	}
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                exchangeItem(user),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                exchangeItem(assistant),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: AppendExchange: %w", err)
	}
	return nil
}

func exchangeItem(ex domain.Exchange) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(ex.SessionID)},
		"SK":        &types.AttributeValueMemberS{Value: msgSK(ex.CreatedAt, ex.Role)},
		"subjectId": &types.AttributeValueMemberS{Value: ex.SubjectID},
		"role":      &types.AttributeValueMemberS{Value: string(ex.Role)},
		"content":   &types.AttributeValueMemberS{Value: ex.Content},
		"createdAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(ex.CreatedAt.Unix(), 10)},
	}
}

// ---- usecase.SessionProvider ----

// GetSession loads the configuration item of a session.
func (c *Client) GetSession(ctx context.Context, sessionID int64) (domain.SessionConfig, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skConfig},
		},
	})
	if err != nil {
		return domain.SessionConfig{}, fmt.Errorf("repository: GetSession: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SessionConfig{}, fmt.Errorf("repository: session %d not found", sessionID)
	}
	return itemToSessionConfig(sessionID, out.Item)
}

func itemToSessionConfig(sessionID int64, item map[string]types.AttributeValue) (domain.SessionConfig, error) {
	persona, _ := strAttr(item, "persona") // allow empty, service applies default
	maxTurns, err := intAttr(item, "maxHistoryTurns")
	if err != nil {
		return domain.SessionConfig{}, fmt.Errorf("repository: GetSession decode: %w", err)
	}
	cfg := domain.SessionConfig{
		SessionID:                     sessionID,
		Persona:                       persona,
		MaxHistoryTurns:               maxTurns,
		IncludeReferenceContent:       boolAttr(item, "includeContent"),
		IncludeHiddenReferenceContent: boolAttr(item, "includeHiddenContent"),
	}
	if boolAttr(item, "rateLimitEnabled") {
		period, err := strAttr(item, "rateLimitPeriod")
		if err != nil {
			return domain.SessionConfig{}, fmt.Errorf("repository: GetSession decode: %w", err)
		}
		count, err := intAttr(item, "rateLimitCount")
		if err != nil {
			return domain.SessionConfig{}, fmt.Errorf("repository: GetSession decode: %w", err)
		}
		cfg.RateLimit = domain.RateLimit{Enabled: true, Period: domain.Period(period), Count: count}
	}
	return cfg, nil
}

// ---- usecase.ContentProvider ----

type contentBlock struct {
	order  int
	title  string
	body   string
	hidden bool
}

// Fetch queries the session's content blocks and renders the visible ones
// (and hidden ones when requested) between the reference-content markers.
// It returns an empty string, not an error, when nothing is included.
func (c *Client) Fetch(ctx context.Context, sessionID int64, includeHidden bool) (string, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skContentPrefix},
		},
	})
	if err != nil {
		return "", fmt.Errorf("repository: Fetch content query: %w", err)
	}

	blocks := make([]contentBlock, 0, len(out.Items))
	for _, item := range out.Items {
		block, err := itemToContentBlock(item)
		if err != nil {
			return "", fmt.Errorf("repository: Fetch content decode: %w", err)
		}
		if block.hidden && !includeHidden {
			continue
		}
		blocks = append(blocks, block)
	}
	if len(blocks) == 0 {
		return "", nil
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].order < blocks[j].order })

	return renderContent(blocks), nil
}

func renderContent(blocks []contentBlock) string {
	var b strings.Builder
	b.WriteString("\n\n" + contentBeginMarker + "\n\n")
	for _, block := range blocks {
		b.WriteString("\n--- " + block.title + " ---\n")
		b.WriteString(block.body)
		b.WriteString("\n")
	}
	b.WriteString("\n" + contentEndMarker + "\n\n")
	return b.String()
}

func itemToContentBlock(item map[string]types.AttributeValue) (contentBlock, error) {
	sk, err := strAttr(item, "SK")
	if err != nil {
		return contentBlock{}, err
	}
	order, err := strconv.Atoi(strings.TrimPrefix(sk, skContentPrefix))
	if err != nil {
		return contentBlock{}, fmt.Errorf("repository: content sort key %q: %w", sk, err)
	}
	title, err := strAttr(item, "title")
	if err != nil {
		return contentBlock{}, err
	}
	body, err := strAttr(item, "body")
	if err != nil {
		return contentBlock{}, err
	}
	return contentBlock{order: order, title: title, body: body, hidden: boolAttr(item, "hidden")}, nil
}

// ---- attribute helpers ----

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

func unixAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	secs, err := intAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0).UTC(), nil
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
