package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nsepulse/pulse/backend"
	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/log"
)

type dynamoDbStore struct {
	dynamoDb *dynamodb.Client
	table    *string
	log      log.Logger
}

func newDynamoDb(conf *config.DynamoDbConfig, backendConf *backend.Config, log log.Logger) (*dynamoDbStore, error) {
	if backendConf == nil {
		return nil, fmt.Errorf("store: DynamoDB requires the backend configuration")
	}
	var opts []func(*dynamodb.Options)
	if conf.Url != "" {
		opts = append(opts, func(options *dynamodb.Options) {
			options.BaseEndpoint = aws.String(conf.Url)
		})
	}
	log.Reportf("using DynamoDB table %s for snapshot storage", conf.Table)
	return &dynamoDbStore{
		dynamoDb: dynamodb.NewFromConfig(backendConf.AWS(), opts...),
		table:    aws.String(conf.Table),
		log:      log,
	}, nil
}

func (d *dynamoDbStore) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := d.dynamoDb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: d.table,
		Key: map[string]types.AttributeValue{
			keyName: &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if payload, ok := res.Item[payloadName]; ok {
		switch v := payload.(type) {
		case *types.AttributeValueMemberB:
			return v.Value, nil
		default:
			return nil, fmt.Errorf("invalid item under key '%s'", key)
		}
	}
	return nil, ErrNotFound
}

func (d *dynamoDbStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := d.dynamoDb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: d.table,
		Item: map[string]types.AttributeValue{
			keyName:     &types.AttributeValueMemberS{Value: key},
			payloadName: &types.AttributeValueMemberB{Value: value},
		},
	})
	return err
}

func (d *dynamoDbStore) Shutdown() {
	d.log.Reportf("shutdown complete")
}
