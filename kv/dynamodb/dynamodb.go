package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/jjeffery/errors"

	"github.com/jjeffery/states/kv"
)

const (
	// DefaultTableName is used if Config.TableName is blank.
	DefaultTableName = "sessions"

	// DefaultKeyField is used if Config.KeyField is blank.
	DefaultKeyField = "key"

	// DefaultExpirationField is used if Config.ExpirationField is blank.
	DefaultExpirationField = "expiration"

	// maxBatchWriteItems is the DynamoDB limit on requests per
	// BatchWriteItem call.
	maxBatchWriteItems = 25
)

// Config describes the DynamoDB table layout. Blank fields take the
// package defaults.
type Config struct {
	TableName       string
	KeyField        string
	ExpirationField string
}

// CreateTableArgs are the provisioning parameters for CreateTable.
// Zero values take the defaults of 10 read and 10 write capacity units.
type CreateTableArgs struct {
	ReadCapacityUnits  int64
	WriteCapacityUnits int64
}

// DB provides storage for session state using an AWS DynamoDB table.
// It implements the kv.DB interface.
type DB struct {
	dynamodb        *dynamodb.DynamoDB
	tableName       string
	keyField        string
	expirationField string
}

var _ kv.DB = (*DB)(nil)

// New creates a DB from an existing DynamoDB client handle.
func New(client *dynamodb.DynamoDB, cfg Config) *DB {
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	if cfg.KeyField == "" {
		cfg.KeyField = DefaultKeyField
	}
	if cfg.ExpirationField == "" {
		cfg.ExpirationField = DefaultExpirationField
	}
	return &DB{
		dynamodb:        client,
		tableName:       cfg.TableName,
		keyField:        cfg.KeyField,
		expirationField: cfg.ExpirationField,
	}
}

// NewFromConfig creates a DB from raw AWS configuration, building the
// session and client handle once, up front.
func NewFromConfig(awsConfig *aws.Config, cfg Config) (*DB, error) {
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create aws session")
	}
	return New(dynamodb.New(sess), cfg), nil
}

// CreateTable creates the DynamoDB table and blocks until it reports
// active status. It then enables time to live on the expiration
// attribute, so that DynamoDB purges most expired rows itself.
func (db *DB) CreateTable(ctx context.Context, args CreateTableArgs) error {
	errors := errors.With("table", db.tableName)
	if args.ReadCapacityUnits <= 0 {
		args.ReadCapacityUnits = 10
	}
	if args.WriteCapacityUnits <= 0 {
		args.WriteCapacityUnits = 10
	}
	_, err := db.dynamodb.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String(db.keyField),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String(db.keyField),
				KeyType:       aws.String(dynamodb.KeyTypeHash),
			},
		},
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(args.ReadCapacityUnits),
			WriteCapacityUnits: aws.Int64(args.WriteCapacityUnits),
		},
		TableName: aws.String(db.tableName),
	})
	if err != nil {
		return errors.Wrap(err, "unable to create dynamodb table")
	}

	err = db.dynamodb.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(db.tableName),
	})
	if err != nil {
		return errors.Wrap(err, "waiting for table to become active")
	}

	_, err = db.dynamodb.UpdateTimeToLiveWithContext(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(db.tableName),
		TimeToLiveSpecification: &dynamodb.TimeToLiveSpecification{
			AttributeName: aws.String(db.expirationField),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return errors.Wrap(err, "unable to set time to live")
	}

	return nil
}

// DropTable deletes the DynamoDB table. A missing table is not an
// error.
func (db *DB) DropTable(ctx context.Context) error {
	_, err := db.dynamodb.DeleteTableWithContext(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(db.tableName),
	})
	if err != nil {
		if hasErrorCode(err, "ResourceNotFoundException") {
			// table not found is not considered an error
			err = nil
		}
	}
	if err != nil {
		return errors.With("table", db.tableName).Wrap(err, "unable to delete dynamodb table")
	}
	return nil
}

// PutItem implements the kv.DB interface.
func (db *DB) PutItem(ctx context.Context, item kv.Item) error {
	errors := errors.With("table", db.tableName)
	attrs, err := dynamodbattribute.MarshalMap(map[string]interface{}(item))
	if err != nil {
		return errors.Wrap(err, "failed to convert to dynamodb attribute values")
	}
	input := &dynamodb.PutItemInput{
		Item:      attrs,
		TableName: aws.String(db.tableName),
	}
	if _, err := db.dynamodb.PutItemWithContext(ctx, input); err != nil {
		return errors.Wrap(err, "unable to save item in dynamodb")
	}
	return nil
}

// GetItem implements the kv.DB interface.
func (db *DB) GetItem(ctx context.Context, key string, projection []string, consistent bool) (kv.Item, error) {
	errors := errors.With("key", key, "table", db.tableName)
	input := &dynamodb.GetItemInput{
		TableName:      aws.String(db.tableName),
		ConsistentRead: aws.Bool(consistent),
		Key: map[string]*dynamodb.AttributeValue{
			db.keyField: {
				S: aws.String(key),
			},
		},
	}
	if len(projection) > 0 {
		// aliases required: attribute names like "key" are reserved
		// words in dynamodb expressions
		expr, names := projectionExpr(projection)
		input.ProjectionExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
	}
	output, err := db.dynamodb.GetItemWithContext(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get item")
	}
	if len(output.Item) == 0 {
		// not found
		return nil, nil
	}
	item, err := unmarshalItem(output.Item)
	if err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal item")
	}
	return item, nil
}

// DeleteItem implements the kv.DB interface.
func (db *DB) DeleteItem(ctx context.Context, key string) error {
	input := &dynamodb.DeleteItemInput{
		Key: map[string]*dynamodb.AttributeValue{
			db.keyField: {
				S: aws.String(key),
			},
		},
		TableName: aws.String(db.tableName),
	}
	if _, err := db.dynamodb.DeleteItemWithContext(ctx, input); err != nil {
		return errors.With("key", key, "table", db.tableName).Wrap(err, "unable to delete item")
	}
	return nil
}

// Scan implements the kv.DB interface. DynamoDB applies the filter
// after reading each row, so this is a full table scan internally.
func (db *DB) Scan(ctx context.Context, projection []string, filter kv.Filter, each func(item kv.Item) error) error {
	errors := errors.With("table", db.tableName)
	names := map[string]*string{
		"#filter": aws.String(filter.Field),
	}
	input := &dynamodb.ScanInput{
		TableName:        aws.String(db.tableName),
		FilterExpression: aws.String("#filter < :before"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":before": {
				N: aws.String(strconv.FormatInt(filter.Before, 10)),
			},
		},
	}
	if len(projection) > 0 {
		expr, projNames := projectionExpr(projection)
		input.ProjectionExpression = aws.String(expr)
		for alias, name := range projNames {
			names[alias] = name
		}
	}
	input.ExpressionAttributeNames = names

	var eachErr error
	err := db.dynamodb.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		for _, raw := range page.Items {
			item, err := unmarshalItem(raw)
			if err != nil {
				eachErr = errors.Wrap(err, "unable to unmarshal item")
				return false
			}
			if err := each(item); err != nil {
				eachErr = err
				return false
			}
		}
		return true
	})
	if err != nil {
		return errors.Wrap(err, "cannot scan table")
	}
	return eachErr
}

// BatchDelete implements the kv.DB interface. Keys are submitted in
// chunks of 25, the DynamoDB batch write limit. No retry is attempted:
// if DynamoDB reports unprocessed items the delete fails.
func (db *DB) BatchDelete(ctx context.Context, keys []string) error {
	errors := errors.With("table", db.tableName)
	for start := 0; start < len(keys); start += maxBatchWriteItems {
		end := start + maxBatchWriteItems
		if end > len(keys) {
			end = len(keys)
		}
		requests := make([]*dynamodb.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{
					Key: map[string]*dynamodb.AttributeValue{
						db.keyField: {
							S: aws.String(key),
						},
					},
				},
			})
		}
		output, err := db.dynamodb.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]*dynamodb.WriteRequest{
				db.tableName: requests,
			},
		})
		if err != nil {
			return errors.Wrap(err, "unable to batch delete items")
		}
		if n := len(output.UnprocessedItems[db.tableName]); n > 0 {
			return errors.New("batch delete left unprocessed items").With("count", n)
		}
	}
	return nil
}

// projectionExpr builds a projection expression using attribute name
// aliases, together with the alias map.
func projectionExpr(projection []string) (string, map[string]*string) {
	aliases := make([]string, len(projection))
	names := make(map[string]*string, len(projection))
	for i, name := range projection {
		alias := fmt.Sprintf("#p%d", i)
		aliases[i] = alias
		names[alias] = aws.String(name)
	}
	return strings.Join(aliases, ","), names
}

// unmarshalItem converts a raw dynamodb row to a flat kv.Item. Numeric
// attributes unmarshal as float64.
func unmarshalItem(raw map[string]*dynamodb.AttributeValue) (kv.Item, error) {
	var m map[string]interface{}
	if err := dynamodbattribute.UnmarshalMap(raw, &m); err != nil {
		return nil, err
	}
	return kv.Item(m), nil
}

func hasErrorCode(err error, code string) bool {
	if coder, ok := err.(interface{ Code() string }); ok {
		return coder.Code() == code
	}
	return false
}
