// Package backend selects and opens the storage backend named in the configuration.
package backend

import (
	"context"
	"fmt"

	"order-store/config"
	"order-store/internal/backend/dynamo"
	"order-store/internal/backend/memory"
	"order-store/internal/backend/pebblekv"
	"order-store/internal/backend/postgres"
	"order-store/internal/backend/redisbackend"
	"order-store/internal/models"
	"order-store/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Open creates the backend selected by cfg.Backend
func Open(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil

	case config.BackendPebble:
		b, err := pebblekv.Open(cfg.Pebble.Dir, pebblekv.Options{Sync: cfg.Pebble.Sync})
		if err != nil {
			return nil, err
		}
		return b, nil

	case config.BackendPostgres:
		b, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return b, nil

	case config.BackendRedis:
		b, err := redisbackend.Open(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return b, nil

	case config.BackendDynamoDB:
		client, err := NewDynamoClient(ctx, cfg.Dynamo)
		if err != nil {
			return nil, err
		}
		return dynamo.New(client, dynamo.Options{
			TablePrefix:   cfg.Dynamo.TablePrefix,
			ReadCapacity:  cfg.Dynamo.ReadCapacity,
			WriteCapacity: cfg.Dynamo.WriteCapacity,
			WaitTimeout:   cfg.Dynamo.WaitTimeout,
		}), nil

	default:
		return nil, fmt.Errorf("%w: unsupported backend %q", models.ErrInvalidArgument, cfg.Backend)
	}
}

// NewDynamoClient builds a DynamoDB client with static credentials.
// An empty endpoint uses the regional AWS endpoint.
func NewDynamoClient(ctx context.Context, cfg config.DynamoConfig) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, models.Unavailable("load aws config", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
