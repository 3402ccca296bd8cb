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
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/edasque/DynamoDBtoCSV/src/ddb"
)

var (
	awsConf    ddb.ClientConfig
	maxRetries int
)

func registerAWSFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&awsConf.Region, "region", "r", "",
		"AWS region of the table (default from the AWS shared config)")
	cmd.Flags().StringVarP(&awsConf.Endpoint, "endpoint", "e", "",
		"endpoint URL, can be used to dump from DynamoDB Local")
	cmd.Flags().StringVarP(&awsConf.Profile, "profile", "p", "",
		"use profile from your AWS credentials file")
	cmd.Flags().StringVarP(&awsConf.MFACode, "mfa", "m", "",
		"MFA code for profiles that assume a role requiring MFA (requires --profile)")
	cmd.Flags().BoolVar(&awsConf.EnvCreds, "env-creds", false,
		"load AWS credentials from AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_DEFAULT_REGION")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0,
		"retries of a throttled or failed request before giving up (default from the AWS SDK)")
	cmd.Flags().DurationVar(&awsConf.MaxBackoff, "max-backoff", 20*time.Second,
		"upper bound of the delay between two retries")
}

// clientConfig resolves the retry flags into attempts. Zero keeps the SDK
// default.
func clientConfig() ddb.ClientConfig {
	cc := awsConf
	if maxRetries > 0 {
		cc.MaxAttempts = maxRetries + 1
	}
	return cc
}
