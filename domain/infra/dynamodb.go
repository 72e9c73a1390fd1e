package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/whisperbox/whisperbox/domain/model"
)

type DynamoDB struct {
	db *dynamodb.Client
}

var tableNamePrefix = "whisperbox"
var questionTableName = tableNamePrefix + "_questions"
var deliveryTableName = tableNamePrefix + "_deliveries"
var counterTableName = tableNamePrefix + "_counters"

func NewDynamoDB() (*DynamoDB, error) {
	if os.Getenv("DYNAMO_TABLE_NAME_PREFIX") != "" {
		tableNamePrefix = os.Getenv("DYNAMO_TABLE_NAME_PREFIX")
		questionTableName = tableNamePrefix + "_questions"
		deliveryTableName = tableNamePrefix + "_deliveries"
		counterTableName = tableNamePrefix + "_counters"
	}

	var db *dynamodb.Client
	if os.Getenv("DYNAMO_LOCAL") != "" {
		cfg, err := config.LoadDefaultConfig(context.TODO(),
			config.WithRegion("dummy"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "dummy")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}
		db = dynamodb.NewFromConfig(cfg,
			func(o *dynamodb.Options) {
				o.BaseEndpoint = aws.String("http://localhost:8000")
			},
		)
	} else {
		cfg, err := config.LoadDefaultConfig(context.TODO())
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}
		db = dynamodb.NewFromConfig(cfg)
	}

	d := &DynamoDB{db: db}
	if os.Getenv("DYNAMO_LOCAL") != "" {
		if err := d.EnsureTable(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

const (
	waitInterval = 2 * time.Second // ポーリング間隔
	maxRetries   = 30              // 最大リトライ回数 (30回 = 約1分)
)

func (d *DynamoDB) EnsureTable() error {
	tableNames := []string{
		questionTableName,
		deliveryTableName,
		counterTableName,
	}
	for _, tableName := range tableNames {
		if err := d.ensureSingleTable(tableName); err != nil {
			return fmt.Errorf("failed to ensure table %s: %v", tableName, err)
		}
	}
	return nil
}

func (d *DynamoDB) ensureSingleTable(tableName string) error {
	_, err := d.db.DescribeTable(context.TODO(), &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err == nil {
		// テーブルが既に存在する
		return nil
	}

	if err := d.createTable(tableName); err != nil {
		return err
	}

	// テーブルがACTIVEになるまで待機
	for i := 0; i < maxRetries; i++ {
		out, err := d.db.DescribeTable(context.TODO(), &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			return fmt.Errorf("failed to describe table %s: %v", tableName, err)
		}
		if out.Table.TableStatus == types.TableStatusActive {
			return nil
		}
		time.Sleep(waitInterval)
	}
	return fmt.Errorf("table %s creation timed out", tableName)
}

func (d *DynamoDB) createTable(tableName string) error {
	var createTableInput *dynamodb.CreateTableInput

	switch tableName {
	case questionTableName:
		createTableInput = &dynamodb.CreateTableInput{
			TableName: aws.String(tableName),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
			},
			ProvisionedThroughput: &types.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(5),
				WriteCapacityUnits: aws.Int64(5),
			},
		}
	case deliveryTableName:
		createTableInput = &dynamodb.CreateTableInput{
			TableName: aws.String(tableName),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("admin_id"), AttributeType: types.ScalarAttributeTypeN},
				{AttributeName: aws.String("message_id"), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("admin_id"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("message_id"), KeyType: types.KeyTypeRange},
			},
			ProvisionedThroughput: &types.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(5),
				WriteCapacityUnits: aws.Int64(5),
			},
		}
	case counterTableName:
		createTableInput = &dynamodb.CreateTableInput{
			TableName: aws.String(tableName),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("name"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("name"), KeyType: types.KeyTypeHash},
			},
			ProvisionedThroughput: &types.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(5),
				WriteCapacityUnits: aws.Int64(5),
			},
		}
	default:
		return fmt.Errorf("unknown table name: %s", tableName)
	}

	if _, err := d.db.CreateTable(context.TODO(), createTableInput); err != nil {
		return fmt.Errorf("failed to create table %s: %v", tableName, err)
	}
	return nil
}

// nextQuestionID はカウンタ行のADD更新でIDを採番する。単調増加が保証される。
func (d *DynamoDB) nextQuestionID() (uint, error) {
	out, err := d.db.UpdateItem(context.TODO(), &dynamodb.UpdateItemInput{
		TableName: aws.String(counterTableName),
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: "question_id"},
		},
		UpdateExpression:         aws.String("ADD #v :one"),
		ExpressionAttributeNames: map[string]string{"#v": "value"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, err
	}
	v, err := getNumberValue(out.Attributes, "value")
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}

func (d *DynamoDB) CreateQuestion(q *model.Question) error {
	id, err := d.nextQuestionID()
	if err != nil {
		return fmt.Errorf("failed to allocate question id: %w", err)
	}
	if q.AskedAt.IsZero() {
		q.AskedAt = time.Now()
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(questionTableName),
		Item: map[string]types.AttributeValue{
			"id":                &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(id), 10)},
			"user_id":           &types.AttributeValueMemberN{Value: strconv.FormatInt(q.UserID, 10)},
			"origin_message_id": &types.AttributeValueMemberN{Value: strconv.Itoa(q.OriginMessageID)},
			"question_text":     &types.AttributeValueMemberS{Value: q.QuestionText},
			"answer_text":       &types.AttributeValueMemberS{Value: ""},
			"asked_at":          &types.AttributeValueMemberS{Value: q.AskedAt.Format(time.RFC3339)},
			"answered_at":       &types.AttributeValueMemberS{Value: ""},
			"is_answered":       &types.AttributeValueMemberN{Value: "0"},
		},
	}
	if _, err := d.db.PutItem(context.TODO(), input); err != nil {
		return err
	}
	q.ID = id
	return nil
}

func (d *DynamoDB) RecordAdminDelivery(questionID uint, adminID int64, messageID int) error {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(deliveryTableName),
		Item: map[string]types.AttributeValue{
			"admin_id":    &types.AttributeValueMemberN{Value: strconv.FormatInt(adminID, 10)},
			"message_id":  &types.AttributeValueMemberN{Value: strconv.Itoa(messageID)},
			"question_id": &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(questionID), 10)},
			"created_at":  &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		},
		// 既存の対応付けは上書きしない
		ConditionExpression: aws.String("attribute_not_exists(admin_id)"),
	}
	_, err := d.db.PutItem(context.TODO(), input)
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

func (d *DynamoDB) ResolveByAdminMessage(adminID int64, messageID int) (*model.Question, error) {
	result, err := d.db.GetItem(context.TODO(), &dynamodb.GetItemInput{
		TableName: aws.String(deliveryTableName),
		Key: map[string]types.AttributeValue{
			"admin_id":   &types.AttributeValueMemberN{Value: strconv.FormatInt(adminID, 10)},
			"message_id": &types.AttributeValueMemberN{Value: strconv.Itoa(messageID)},
		},
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil
	}
	questionID, err := getNumberValue(result.Item, "question_id")
	if err != nil {
		return nil, err
	}
	return d.getQuestion(uint(questionID))
}

func (d *DynamoDB) MarkAnswered(questionID uint, answerText string) error {
	_, err := d.db.UpdateItem(context.TODO(), &dynamodb.UpdateItemInput{
		TableName: aws.String(questionTableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(questionID), 10)},
		},
		UpdateExpression:    aws.String("SET answer_text = :a, is_answered = :one, answered_at = :t"),
		ConditionExpression: aws.String("is_answered = :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a":    &types.AttributeValueMemberS{Value: answerText},
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":t":    &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		// 条件不成立は「存在しない」か「回答済み」のどちらか
		q, getErr := d.getQuestion(questionID)
		if getErr != nil {
			return getErr
		}
		if q == nil {
			return ErrQuestionNotFound
		}
		return ErrAlreadyAnswered
	}
	return err
}

func (d *DynamoDB) GetStats() (*model.Stats, error) {
	total, err := d.db.Scan(context.TODO(), &dynamodb.ScanInput{
		TableName: aws.String(questionTableName),
		Select:    types.SelectCount,
	})
	if err != nil {
		return nil, err
	}
	answered, err := d.db.Scan(context.TODO(), &dynamodb.ScanInput{
		TableName:        aws.String(questionTableName),
		Select:           types.SelectCount,
		FilterExpression: aws.String("is_answered = :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return nil, err
	}
	stats := &model.Stats{
		Total:    int64(total.Count),
		Answered: int64(answered.Count),
	}
	stats.Pending = stats.Total - stats.Answered
	return stats, nil
}

func (d *DynamoDB) GetPendingQuestions(limit, offset int) ([]model.Question, error) {
	result, err := d.db.Scan(context.TODO(), &dynamodb.ScanInput{
		TableName:        aws.String(questionTableName),
		FilterExpression: aws.String("is_answered = :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
	})
	if err != nil {
		return nil, err
	}

	var questions []model.Question
	for _, item := range result.Items {
		q, err := parseQuestionItem(item)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}

	// Dynamoでうまいことソートできないのでここでソート
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].AskedAt.Equal(questions[j].AskedAt) {
			return questions[i].ID > questions[j].ID
		}
		return questions[i].AskedAt.After(questions[j].AskedAt)
	})

	if offset >= len(questions) {
		return nil, nil
	}
	questions = questions[offset:]
	if limit < len(questions) {
		questions = questions[:limit]
	}
	return questions, nil
}

func (d *DynamoDB) getQuestion(questionID uint) (*model.Question, error) {
	result, err := d.db.GetItem(context.TODO(), &dynamodb.GetItemInput{
		TableName: aws.String(questionTableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(questionID), 10)},
		},
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil
	}
	return parseQuestionItem(result.Item)
}

func parseQuestionItem(item map[string]types.AttributeValue) (*model.Question, error) {
	id, err := getNumberValue(item, "id")
	if err != nil {
		return nil, err
	}
	userID, err := getNumberValue(item, "user_id")
	if err != nil {
		return nil, err
	}
	originMessageID, err := getNumberValue(item, "origin_message_id")
	if err != nil {
		return nil, err
	}
	isAnswered, err := getNumberValue(item, "is_answered")
	if err != nil {
		return nil, err
	}

	askedAtStr := getStringValue(item, "asked_at")
	if askedAtStr == "" {
		return nil, fmt.Errorf("asked_at is empty")
	}
	askedAt, err := time.Parse(time.RFC3339, askedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse asked_at (%s): %v", askedAtStr, err)
	}

	var answeredAt *time.Time
	if s := getStringValue(item, "answered_at"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse answered_at (%s): %v", s, err)
		}
		answeredAt = &t
	}

	return &model.Question{
		ID:              uint(id),
		UserID:          int64(userID),
		OriginMessageID: originMessageID,
		QuestionText:    getStringValue(item, "question_text"),
		AnswerText:      getStringValue(item, "answer_text"),
		AskedAt:         askedAt,
		AnsweredAt:      answeredAt,
		IsAnswered:      isAnswered == 1,
	}, nil
}

func getStringValue(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func getNumberValue(item map[string]types.AttributeValue, key string) (int, error) {
	if v, ok := item[key].(*types.AttributeValueMemberN); ok {
		return strconv.Atoi(v.Value)
	}
	return 0, fmt.Errorf("failed to parse %s", key)
}
