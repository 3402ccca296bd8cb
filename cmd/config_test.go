//go:build unit

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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edasque/DynamoDBtoCSV/src/config"
	"github.com/edasque/DynamoDBtoCSV/src/ddb"
	"github.com/edasque/DynamoDBtoCSV/src/errs"
	"github.com/edasque/DynamoDBtoCSV/src/export"
	"github.com/edasque/DynamoDBtoCSV/src/tabular"
	"github.com/edasque/DynamoDBtoCSV/src/utils/csv"
)

// resetFlags restores every flag of cmd to its default and clears Changed,
// so consecutive Execute calls in one test binary do not leak state.
func resetFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func resetExportCmd(t *testing.T) {
	resetFlags(exportCmd.Flags())
	resetFlags(rootCmd.PersistentFlags())
	original := exportCmd.Run
	exportCmd.Run = func(cmd *cobra.Command, args []string) {}
	t.Cleanup(func() {
		exportCmd.Run = original
		resetFlags(exportCmd.Flags())
		resetFlags(rootCmd.PersistentFlags())
	})
}

func setupConfigFile(t *testing.T, configContent string) string {
	configFile := filepath.Join(t.TempDir(), "ddb2csv-config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))
	return configFile
}

func TestExportConfigBinding_SuccessCases(t *testing.T) {
	resetExportCmd(t)

	configFile := setupConfigFile(t, `
log-level: debug
aws:
  region: eu-west-1
  max-retries: 5
export:
  table: orders
  key-condition: "pk = :pk"
  key-values: '{":pk":{"S":"a"}}'
  size: 10
  newlines: strip
  disable-pb: true
`)
	rootCmd.SetArgs([]string{"export", "--config-file", configFile, "--disable-logging"})
	err := rootCmd.Execute()
	require.NoError(t, err)

	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "eu-west-1", awsConf.Region)
	assert.Equal(t, 5, maxRetries)
	assert.Equal(t, "orders", tableName)
	assert.Equal(t, "pk = :pk", keyCondition)
	assert.Equal(t, `{":pk":{"S":"a"}}`, keyValues)
	assert.Equal(t, int64(10), chunkSize)
	assert.Equal(t, "strip", newlinesFlag)
	assert.True(t, disablePb)
	// untouched flags keep their defaults
	assert.Equal(t, int32(1000), pageLimit)
	assert.Equal(t, "crlf", lineTerminatorFlag)
}

func TestExportConfigBinding_CLIOverridesConfig(t *testing.T) {
	resetExportCmd(t)

	configFile := setupConfigFile(t, `
aws:
  region: eu-west-1
export:
  table: orders
  size: 10
`)
	rootCmd.SetArgs([]string{
		"export",
		"--config-file", configFile,
		"--disable-logging",
		"--size", "50",
		"-r", "us-east-2",
	})
	err := rootCmd.Execute()
	require.NoError(t, err)

	assert.Equal(t, int64(50), chunkSize)
	assert.Equal(t, "us-east-2", awsConf.Region)
	assert.Equal(t, "orders", tableName)
}

func TestExportConfigBinding_EnvVarConfigFile(t *testing.T) {
	resetExportCmd(t)

	configFile := setupConfigFile(t, `
export:
  table: from-env
`)
	t.Setenv(ConfigFileEnvVar, configFile)
	rootCmd.SetArgs([]string{"export", "--disable-logging"})
	err := rootCmd.Execute()
	require.NoError(t, err)
	assert.Equal(t, "from-env", tableName)
}

func TestExportConfigBinding_InvalidKeys(t *testing.T) {
	resetExportCmd(t)

	configFile := setupConfigFile(t, `
colour: red
export:
  table: orders
  bogus: 1
imports:
  table: x
`)
	rootCmd.SetArgs([]string{"export", "--config-file", configFile, "--disable-logging"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found invalid configurations in config file")
}

func TestExportConfigBinding_BadValue(t *testing.T) {
	resetExportCmd(t)

	configFile := setupConfigFile(t, `
export:
  size: lots
`)
	rootCmd.SetArgs([]string{"export", "--config-file", configFile, "--disable-logging"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `config key "export.size"`)
}

func TestRootLogLevelValidated(t *testing.T) {
	resetExportCmd(t)

	configFile := setupConfigFile(t, "log-level: loud\n")
	rootCmd.SetArgs([]string{"export", "--config-file", configFile, "--disable-logging"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loud")
}

func TestBuildExportPlan(t *testing.T) {
	resetExportCmd(t)

	tableName = " orders "
	keyCondition = "pk = :pk"
	keyValues = `{":pk":{"S":"a"}}`
	statsField = "color"
	selectFields = "pk, color,"
	lineTerminatorFlag = "LF"
	delimiterFlag = ";"
	maxRetries = 3

	plan, err := buildExportPlan()
	require.NoError(t, err)

	assert.Equal(t, "orders", plan.Request.TableName)
	assert.Equal(t, []string{"pk", "color"}, plan.Request.Projection)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "a"}, plan.Request.ExpressionAttributeValues[":pk"])
	assert.Equal(t, export.ModeStats, plan.Options.Mode)
	assert.Equal(t, "color", plan.Options.StatsField)
	assert.Equal(t, export.DefaultChunkSize, int(plan.Options.ChunkSize))
	assert.Equal(t, export.HeaderPolicyAppend, plan.Options.HeaderPolicy)
	assert.Equal(t, "\n", plan.Options.Serializer.LineTerminator)
	assert.Equal(t, byte(';'), plan.Options.Serializer.Delimiter)
	assert.Equal(t, 4, plan.AWS.MaxAttempts)
}

func TestBuildExportPlan_CountAndStartKey(t *testing.T) {
	resetExportCmd(t)

	tableName = "orders"
	keyCondition = "pk = :pk"
	keyValues = `{":pk":{"S":"a"}}`
	countOnly = true
	startKey = `{"pk":{"S":"a"},"sk":{"N":"7"}}`

	plan, err := buildExportPlan()
	require.NoError(t, err)
	assert.Equal(t, export.ModeCount, plan.Options.Mode)
	assert.True(t, plan.Request.CountOnly)
	require.Len(t, plan.Options.StartCursor, 2)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "7"}, plan.Options.StartCursor["sk"])
}

func TestBuildExportPlan_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name     string
		set      func()
		wantFlag string
	}{
		{"missing table", func() {}, "table"},
		{"blank table", func() { tableName = "   " }, "table"},
		{"bad key values", func() {
			tableName = "t"
			keyCondition = "pk = :pk"
			keyValues = `{":pk":"a"}`
		}, "key-values"},
		{"count without key condition", func() {
			tableName = "t"
			countOnly = true
		}, "key-condition"},
		{"key condition without values", func() {
			tableName = "t"
			keyCondition = "pk = :pk"
		}, "key-condition"},
		{"stats without key condition", func() {
			tableName = "t"
			statsField = "color"
		}, "stats"},
		{"count with stats", func() {
			tableName = "t"
			countOnly = true
			statsField = "color"
		}, "count"},
		{"zero chunk size", func() {
			tableName = "t"
			chunkSize = 0
		}, "size"},
		{"bad newline policy", func() {
			tableName = "t"
			newlinesFlag = "fold"
		}, "newlines"},
		{"bad line terminator", func() {
			tableName = "t"
			lineTerminatorFlag = "cr"
		}, "line-terminator"},
		{"multi byte delimiter", func() {
			tableName = "t"
			delimiterFlag = ";;"
		}, "delimiter"},
		{"quote as delimiter", func() {
			tableName = "t"
			delimiterFlag = `"`
		}, "delimiter"},
		{"bad header policy", func() {
			tableName = "t"
			headerPolicyFlag = "guess"
		}, "header-policy"},
		{"bad start key", func() {
			tableName = "t"
			startKey = "last"
		}, "start-key"},
		{"upload without file", func() {
			tableName = "t"
			uploadURL = "s3://bucket/out.csv"
		}, "upload-url"},
		{"upload to non s3 url", func() {
			tableName = "t"
			outputFile = "out.csv"
			uploadURL = "https://bucket/out.csv"
		}, "upload-url"},
		{"mfa without profile", func() {
			tableName = "t"
			awsConf.MFACode = "123456"
		}, "mfa"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resetExportCmd(t)
			tc.set()

			_, err := buildExportPlan()
			require.Error(t, err)
			var configErr *errs.InvalidConfigErr
			require.True(t, errors.As(err, &configErr), "unexpected error type: %v", err)
			assert.Equal(t, tc.wantFlag, configErr.Flag())
		})
	}
}

type pageFetcher struct {
	pages []*ddb.Page
	calls int
}

func (f *pageFetcher) Fetch(_ context.Context, _ ddb.Cursor) (*ddb.Page, error) {
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func TestOpenSinkKeepsExistingHeader(t *testing.T) {
	resetExportCmd(t)

	outputFile = filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(outputFile, []byte("\"id\",\"name\"\r\n\"1\",\"a\"\r\n"), 0644))

	opts := export.Options{Mode: export.ModeRows, Serializer: tabular.DefaultSerializer()}
	sink, err := openSink(&opts)
	require.NoError(t, err)
	defer sink.Close()

	assert.Equal(t, []string{"id", "name"}, opts.HeaderNames)
	assert.Equal(t, outputFile, sink.FilePath())
}

func TestOpenSinkReadsHeaderWithConfiguredDelimiter(t *testing.T) {
	resetExportCmd(t)

	outputFile = filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(outputFile, []byte("\"id\";\"name\"\r\n"), 0644))

	opts := export.Options{Mode: export.ModeRows, Serializer: tabular.DefaultSerializer()}
	opts.Serializer.Delimiter = ';'
	sink, err := openSink(&opts)
	require.NoError(t, err)
	defer sink.Close()

	assert.Equal(t, []string{"id", "name"}, opts.HeaderNames)
}

func TestOpenSinkNewFile(t *testing.T) {
	resetExportCmd(t)

	outputFile = filepath.Join(t.TempDir(), "new.csv")
	opts := export.Options{Mode: export.ModeRows, Serializer: tabular.DefaultSerializer()}
	sink, err := openSink(&opts)
	require.NoError(t, err)
	defer sink.Close()

	assert.Empty(t, opts.HeaderNames)
}

func TestResumedExportAppendsUnderExistingHeader(t *testing.T) {
	resetExportCmd(t)

	outputFile = filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(outputFile, []byte("\"id\",\"name\"\r\n\"1\",\"a\"\r\n\"2\",\"b\"\r\n"), 0644))

	opts := export.Options{
		Mode:        export.ModeRows,
		ChunkSize:   1,
		Serializer:  tabular.DefaultSerializer(),
		StartCursor: ddb.Cursor{"id": &types.AttributeValueMemberS{Value: "2"}},
	}
	sink, err := openSink(&opts)
	require.NoError(t, err)

	fetcher := &pageFetcher{pages: []*ddb.Page{
		{Items: []ddb.Row{{
			"email": &types.AttributeValueMemberS{Value: "c@x"},
			"id":    &types.AttributeValueMemberS{Value: "3"},
		}}, LastEvaluatedKey: ddb.Cursor{"id": &types.AttributeValueMemberS{Value: "3"}}},
		{Items: []ddb.Row{{
			"name": &types.AttributeValueMemberS{Value: "d"},
			"id":   &types.AttributeValueMemberS{Value: "4"},
		}}},
	}}
	_, err = export.Run(context.Background(), fetcher, sink, opts, nil)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	f, err := os.Open(outputFile)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		records = append(records, record)
	}

	require.Len(t, records, 5)
	header := records[0]
	assert.Equal(t, []string{"id", "name"}, header)
	// every appended value sits under the column of the same name
	assert.Equal(t, []string{"3", "", "c@x"}, records[3])
	assert.Equal(t, []string{"4", "d", ""}, records[4])
	for i, record := range records[1:] {
		assert.Equal(t, fmt.Sprint(i+1), record[0], "id column of line %d", i+2)
	}
}

func TestRedactedPlan(t *testing.T) {
	plan := &exportPlan{}
	plan.AWS.MFACode = "123456"
	plan.AWS.Profile = "dev"

	redacted := redactedPlan(plan)
	assert.Equal(t, "XXX", redacted.AWS.MFACode)
	assert.Equal(t, "dev", redacted.AWS.Profile)
	assert.Equal(t, "123456", plan.AWS.MFACode)
}
