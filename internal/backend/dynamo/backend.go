package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"order-store/internal/backend/keyspace"
	"order-store/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Client is the subset of the DynamoDB API the backend uses.
// *dynamodb.Client satisfies it.
type Client interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Options configures table naming and provisioning
type Options struct {
	TablePrefix   string
	ReadCapacity  int64
	WriteCapacity int64
	// WaitTimeout bounds how long EnsureCollection waits for a new table to become active
	WaitTimeout time.Duration
}

// Backend maps each collection to a DynamoDB table and each index to a
// global secondary index. DynamoDB maintains index items within the same
// PutItem, so index entries are never written separately.
type Backend struct {
	client Client
	opts   Options
}

// New creates a DynamoDB backend
func New(client Client, opts Options) *Backend {
	if opts.ReadCapacity <= 0 {
		opts.ReadCapacity = 10
	}
	if opts.WriteCapacity <= 0 {
		opts.WriteCapacity = 10
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 2 * time.Minute
	}
	return &Backend{client: client, opts: opts}
}

func (b *Backend) Name() string { return "dynamodb" }

func (b *Backend) Close() error { return nil }

func (b *Backend) table(collection string) string {
	return b.opts.TablePrefix + collection
}

func (b *Backend) EnsureCollection(ctx context.Context, schema models.CollectionSchema) (models.SchemaStatus, error) {
	table := b.table(schema.Name)

	_, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return models.SchemaExists, nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return "", models.Unavailable("describe table "+table, err)
	}

	_, err = b.client.CreateTable(ctx, b.createTableInput(table, schema))
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return models.SchemaExists, nil
		}
		return "", models.Unavailable("create table "+table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(b.client, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = time.Second
		o.MaxDelay = 10 * time.Second
	})
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, b.opts.WaitTimeout); err != nil {
		return "", models.Unavailable("wait for table "+table, err)
	}

	return models.SchemaCreated, nil
}

func (b *Backend) createTableInput(table string, schema models.CollectionSchema) *dynamodb.CreateTableInput {
	throughput := &types.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(b.opts.ReadCapacity),
		WriteCapacityUnits: aws.Int64(b.opts.WriteCapacity),
	}

	attrs := map[string]struct{}{schema.PrimaryKey: {}}
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(schema.PrimaryKey), KeyType: types.KeyTypeHash},
		},
		BillingMode:           types.BillingModeProvisioned,
		ProvisionedThroughput: throughput,
	}

	// The base table has a hash key only, which DynamoDB does not allow local
	// indexes on, so every declared index is provisioned as a GSI.
	for _, idx := range schema.Indexes {
		keySchema := []types.KeySchemaElement{
			{AttributeName: aws.String(idx.PartitionKey), KeyType: types.KeyTypeHash},
		}
		attrs[idx.PartitionKey] = struct{}{}
		if idx.SortKey != "" {
			keySchema = append(keySchema, types.KeySchemaElement{
				AttributeName: aws.String(idx.SortKey), KeyType: types.KeyTypeRange,
			})
			attrs[idx.SortKey] = struct{}{}
		}
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:             aws.String(idx.Name),
			KeySchema:             keySchema,
			Projection:            &types.Projection{ProjectionType: types.ProjectionType(idx.Projection)},
			ProvisionedThroughput: throughput,
		})
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeTypeS,
		})
	}

	return input
}

func (b *Backend) Put(ctx context.Context, w models.Write) error {
	_, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table(w.Collection.Name)),
		Item:      toItem(w.Record),
	})
	if err != nil {
		return models.Unavailable("put item", err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, schema models.CollectionSchema, key string) (models.Record, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table(schema.Name)),
		Key:            map[string]types.AttributeValue{schema.PrimaryKey: &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, models.Unavailable("get item", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", models.ErrNotFound, schema.Name, key)
	}
	return fromItem(out.Item), nil
}

func (b *Backend) Scan(ctx context.Context, collection string, fn func(models.Record) error) error {
	p := dynamodb.NewScanPaginator(b.client, &dynamodb.ScanInput{
		TableName:      aws.String(b.table(collection)),
		ConsistentRead: aws.Bool(true),
	})

	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return models.Unavailable("scan", err)
		}
		for _, item := range page.Items {
			if err := fn(fromItem(item)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, q models.IndexQuery) ([]models.Record, error) {
	cond := "#pk = :pk"
	names := map[string]string{"#pk": q.Index.PartitionKey}
	values := map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: q.Partition}}
	if q.Sort != "" {
		cond += " AND #sk = :sk"
		names["#sk"] = q.Index.SortKey
		values[":sk"] = &types.AttributeValueMemberS{Value: q.Sort}
	}

	p := dynamodb.NewQueryPaginator(b.client, &dynamodb.QueryInput{
		TableName:                 aws.String(b.table(q.Collection.Name)),
		IndexName:                 aws.String(q.Index.Name),
		KeyConditionExpression:    aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(true),
	})

	out := []models.Record{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, models.Unavailable("query "+q.Index.Name, err)
		}
		for _, item := range page.Items {
			out = append(out, fromItem(item))
		}
	}

	// GSIs without a sort key come back in hash order
	keyspace.SortRecords(out, q.Index.SortKey, q.Collection.PrimaryKey)
	return out, nil
}

func toItem(rec models.Record) map[string]types.AttributeValue {
	item := make(map[string]types.AttributeValue, len(rec))
	for k, v := range rec {
		item[k] = &types.AttributeValueMemberS{Value: v}
	}
	return item
}

func fromItem(item map[string]types.AttributeValue) models.Record {
	rec := make(models.Record, len(item))
	for k, v := range item {
		switch av := v.(type) {
		case *types.AttributeValueMemberS:
			rec[k] = av.Value
		case *types.AttributeValueMemberN:
			rec[k] = av.Value
		case *types.AttributeValueMemberBOOL:
			rec[k] = strconv.FormatBool(av.Value)
		}
	}
	return rec
}
