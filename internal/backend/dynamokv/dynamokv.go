// Package dynamokv implements the persistent key-value mechanism over AWS
// DynamoDB. One table holds every bucket: the partition key is the bucket
// name, the binary sort key is the encoded record key, so a Query returns
// entries already in key order.
package dynamokv

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/backend/kv"
)

func init() {
	backend.Register(factory{})
}

const (
	attrBucket = "bucket"
	attrKey    = "k"
	attrValue  = "v"
)

type factory struct{}

func (factory) Type() string { return "dynamodb" }

func (factory) IsSupported(cfg backend.Config) bool {
	return cfg.Region != "" && cfg.Table != ""
}

func (factory) Create(cfg backend.Config) (backend.Driver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	opts := []func(*dynamodb.Options){}
	if cfg.Endpoint != "" {
		// Custom endpoint, e.g. LocalStack.
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	client := dynamodb.NewFromConfig(awsCfg, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(cfg.Table),
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to DynamoDB table %s: %w", cfg.Table, err)
	}
	return kv.NewDriver("dynamodb", &service{client: client, table: cfg.Table}), nil
}

type service struct {
	client *dynamodb.Client
	table  string
}

func (s *service) itemKey(bucket string, k []byte) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrBucket: &types.AttributeValueMemberS{Value: bucket},
		attrKey:    &types.AttributeValueMemberB{Value: k},
	}
}

func (s *service) Get(ctx context.Context, bucket string, k []byte) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.itemKey(bucket, k),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from %s: %w", bucket, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	if v, ok := out.Item[attrValue].(*types.AttributeValueMemberB); ok {
		return v.Value, nil
	}
	return nil, nil
}

func (s *service) Set(ctx context.Context, bucket string, k, v []byte) error {
	item := s.itemKey(bucket, k)
	item[attrValue] = &types.AttributeValueMemberB{Value: v}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to put item into %s: %w", bucket, err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, bucket string, k []byte) (bool, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.table),
		Key:          s.itemKey(bucket, k),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete item from %s: %w", bucket, err)
	}
	return len(out.Attributes) > 0, nil
}

func (s *service) Scan(ctx context.Context, bucket string) ([]kv.Pair, error) {
	var pairs []kv.Pair
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("#b = :b"),
			ExpressionAttributeNames: map[string]string{
				"#b": attrBucket,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":b": &types.AttributeValueMemberS{Value: bucket},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", bucket, err)
		}
		for _, item := range out.Items {
			kAttr, ok := item[attrKey].(*types.AttributeValueMemberB)
			if !ok {
				continue
			}
			var val []byte
			if vAttr, ok := item[attrValue].(*types.AttributeValueMemberB); ok {
				val = vAttr.Value
			}
			pairs = append(pairs, kv.Pair{Key: kAttr.Value, Value: val})
		}
		if out.LastEvaluatedKey == nil {
			return pairs, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *service) DropBucket(ctx context.Context, bucket string) (int, error) {
	pairs, err := s.Scan(ctx, bucket)
	if err != nil {
		return 0, err
	}
	for _, p := range pairs {
		if _, err := s.Delete(ctx, bucket, p.Key); err != nil {
			return 0, err
		}
	}
	return len(pairs), nil
}

func (s *service) Close() error { return nil }
