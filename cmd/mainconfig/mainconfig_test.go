package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/agent-console/internal/config"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{AWSRegion: "ap-south-1", AWSAccessKeyID: "test", AWSSecretAccessKey: "secret"}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)
}

func TestClientsUseEndpointOverride(t *testing.T) {
	cfg := &appconfig.Config{AWSRegion: "us-east-1", AWSEndpointOverride: "http://localhost:4566"}
	awsCfg := aws.Config{Region: "us-east-1"}

	sqsClient := NewSQSClient(awsCfg, cfg)
	require.NotNil(t, sqsClient.Options().BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *sqsClient.Options().BaseEndpoint)

	sesClient := NewSESClient(awsCfg, cfg)
	require.NotNil(t, sesClient.Options().BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *sesClient.Options().BaseEndpoint)

	plain := NewSQSClient(awsCfg, &appconfig.Config{})
	assert.Nil(t, plain.Options().BaseEndpoint)
}

func TestNeedsAWS(t *testing.T) {
	assert.False(t, NeedsAWS(&appconfig.Config{EmailProvider: "stub"}))
	assert.True(t, NeedsAWS(&appconfig.Config{EmailProvider: "ses"}))
	assert.True(t, NeedsAWS(&appconfig.Config{SuggestionQueueURL: "http://localhost:4566/000000000000/feed"}))
}

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions(&appconfig.Config{RedisAddr: "cache:6379", RedisPassword: "pw", RedisTLS: true})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	require.NotNil(t, opts.TLSConfig)

	assert.Nil(t, RedisOptions(&appconfig.Config{RedisAddr: "cache:6379"}).TLSConfig)
}

func TestConnectPostgresEmptyURL(t *testing.T) {
	pool, err := ConnectPostgres(context.Background(), " ")
	require.NoError(t, err)
	assert.Nil(t, pool)
}
