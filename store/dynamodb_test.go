package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nsepulse/pulse/backend"
	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/outputs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcdynamodb "github.com/testcontainers/testcontainers-go/modules/dynamodb"
)

const (
	tableName = "test-table"
)

type dynamoDbTestSuite struct {
	suite.Suite

	db      *tcdynamodb.DynamoDBContainer
	addr    string
	backend *backend.Config
}

func (s *dynamoDbTestSuite) SetupSuite() {
	dynamoDbContainer, err := tcdynamodb.Run(s.T().Context(), "amazon/dynamodb-local")
	if err != nil {
		panic("failed to start container: " + err.Error() + "")
	}
	s.db = dynamoDbContainer
	str, _ := s.db.ConnectionString(s.T().Context())
	s.addr = "http://" + str

	s.T().Setenv("AWS_ACCESS_KEY_ID", "key")
	s.T().Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	s.T().Setenv("AWS_SESSION_TOKEN", "session")

	s.backend, err = backend.Configure(s.T().Context(), &outputs.Payload{
		Version: "1",
		Storage: &outputs.StorageOutputs{Region: "ap-south-1", BucketName: "bucket"},
	}, &config.AwsConfig{}, telemetry.NewEmptyReporter(), log.NewNullLogger())
	if err != nil {
		panic("failed to configure backend: " + err.Error() + "")
	}
}

func (s *dynamoDbTestSuite) TearDownSuite() {
	if err := testcontainers.TerminateContainer(s.db); err != nil {
		panic("failed to terminate container: " + err.Error() + "")
	}
}

func TestRunDynamoDbSuite(t *testing.T) {
	suite.Run(t, new(dynamoDbTestSuite))
}

func (s *dynamoDbTestSuite) TestDynamoDbStore() {
	assert.NoError(s.T(), createTableIfNotExist(s.T().Context(), s.backend, tableName, s.addr))

	s.Run("ok", func() {
		store, err := newDynamoDb(&config.DynamoDbConfig{
			Enabled: true,
			Table:   tableName,
			Url:     s.addr,
		}, s.backend, log.NewNullLogger())
		assert.NoError(s.T(), err)
		defer store.Shutdown()

		err = store.Set(s.T().Context(), "nifty", []byte(`test`))
		assert.NoError(s.T(), err)

		res, err := store.Get(s.T().Context(), "nifty")
		assert.NoError(s.T(), err)
		assert.Equal(s.T(), `test`, string(res))

		err = store.Set(s.T().Context(), "nifty", []byte(`test2`))
		assert.NoError(s.T(), err)

		res, err = store.Get(s.T().Context(), "nifty")
		assert.NoError(s.T(), err)
		assert.Equal(s.T(), `test2`, string(res))
	})

	s.Run("empty", func() {
		store, err := newDynamoDb(&config.DynamoDbConfig{
			Enabled: true,
			Table:   tableName,
			Url:     s.addr,
		}, s.backend, log.NewNullLogger())
		assert.NoError(s.T(), err)
		defer store.Shutdown()

		_, err = store.Get(s.T().Context(), "banknifty")
		assert.ErrorIs(s.T(), err, ErrNotFound)
	})

	s.Run("no-table", func() {
		store, err := newDynamoDb(&config.DynamoDbConfig{
			Enabled: true,
			Table:   "nonexisting",
			Url:     s.addr,
		}, s.backend, log.NewNullLogger())
		assert.NoError(s.T(), err)
		defer store.Shutdown()

		_, err = store.Get(s.T().Context(), "nifty")
		assert.Error(s.T(), err)
		assert.NotErrorIs(s.T(), err, ErrNotFound)
	})
}

func (s *dynamoDbTestSuite) TestSetup() {
	assert.NoError(s.T(), createTableIfNotExist(s.T().Context(), s.backend, tableName, s.addr))

	st, err := Setup(s.T().Context(), &config.StoreConfig{DynamoDb: config.DynamoDbConfig{
		Enabled: true,
		Table:   tableName,
		Url:     s.addr,
	}}, s.backend, telemetry.NewEmptyReporter(), nil, log.NewNullLogger())
	assert.NoError(s.T(), err)
	defer st.Shutdown()
	assert.IsType(s.T(), &dynamoDbStore{}, st.(*reportingStore).raw)

	snap := testSnapshot(24500)
	assert.NoError(s.T(), st.Set(s.T().Context(), "nifty", snap))
	res, err := st.Get(s.T().Context(), "nifty")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), snap, res)
}

func createTableIfNotExist(ctx context.Context, backendConf *backend.Config, table string, addr string) error {
	client := dynamodb.NewFromConfig(backendConf.AWS(), func(options *dynamodb.Options) {
		options.BaseEndpoint = aws.String(addr)
	})

	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err == nil {
		return nil
	}
	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String(keyName),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String(keyName),
				KeyType:       types.KeyTypeHash,
			},
		},
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(1),
			WriteCapacityUnits: aws.Int64(1),
		},
	})
	if err != nil {
		return err
	}

	timeout := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			return fmt.Errorf("table creation timed out")
		case <-ticker.C:
			res, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
				TableName: aws.String(table),
			})
			if err == nil && res.Table.TableStatus == types.TableStatusActive {
				return nil
			}
		}
	}
}
