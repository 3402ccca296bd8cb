/*
Copyright (c) The DynamoDBtoCSV Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package ddb

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	log "github.com/sirupsen/logrus"
)

// ClientConfig holds the connection options of a run. Credentials come from
// the default provider chain unless Profile or EnvCreds says otherwise.
type ClientConfig struct {
	Region   string
	Endpoint string
	Profile  string
	MFACode  string
	EnvCreds bool

	// Throttled requests are retried by the SDK. Zero values keep the SDK
	// defaults.
	MaxAttempts int
	MaxBackoff  time.Duration
	// Backoff overrides the delay between retries.
	Backoff retry.BackoffDelayer
}

func (cc *ClientConfig) Validate() error {
	if cc.MFACode != "" && cc.Profile == "" {
		return fmt.Errorf("MFA requires a profile to work")
	}
	if cc.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative")
	}
	return nil
}

func (cc *ClientConfig) loadOptions() []func(*config.LoadOptions) error {
	var opts []func(*config.LoadOptions) error
	if cc.Region != "" {
		opts = append(opts, config.WithRegion(cc.Region))
	}
	if cc.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cc.Profile))
	}
	if cc.MFACode != "" {
		mfaCode := cc.MFACode
		opts = append(opts, config.WithAssumeRoleCredentialOptions(func(o *stscreds.AssumeRoleOptions) {
			o.TokenProvider = func() (string, error) { return mfaCode, nil }
		}))
	}
	if cc.EnvCreds {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"), os.Getenv("AWS_SESSION_TOKEN"))))
		if cc.Region == "" && os.Getenv("AWS_DEFAULT_REGION") != "" {
			opts = append(opts, config.WithRegion(os.Getenv("AWS_DEFAULT_REGION")))
		}
	}
	opts = append(opts, config.WithRetryer(cc.newRetryer))
	return opts
}

func (cc *ClientConfig) newRetryer() aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		if cc.MaxAttempts > 0 {
			o.MaxAttempts = cc.MaxAttempts
		}
		if cc.MaxBackoff > 0 {
			o.MaxBackoff = cc.MaxBackoff
			o.Backoff = retry.NewExponentialJitterBackoff(cc.MaxBackoff)
		}
		if cc.Backoff != nil {
			o.Backoff = cc.Backoff
		}
	})
}

// LoadAWSConfig resolves credentials and region. It is shared by the
// DynamoDB client and the S3 uploader.
func LoadAWSConfig(ctx context.Context, cc ClientConfig) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, cc.loadOptions()...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	log.Infof("aws config loaded: region=%q profile=%q endpoint=%q", cfg.Region, cc.Profile, cc.Endpoint)
	return cfg, nil
}

func NewClient(ctx context.Context, cc ClientConfig) (*dynamodb.Client, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	cfg, err := LoadAWSConfig(ctx, cc)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if cc.Endpoint != "" {
			// Used to dump from DynamoDB Local.
			o.EndpointResolver = dynamodb.EndpointResolverFromURL(cc.Endpoint)
		}
	}), nil
}
