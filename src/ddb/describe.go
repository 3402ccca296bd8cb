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
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
)

func DescribeTable(ctx context.Context, api API, tableName string) (*types.TableDescription, error) {
	out, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		return nil, fmt.Errorf("describe table %q: %w", tableName, err)
	}
	return out.Table, nil
}

// PrintTableDescription writes a two-column summary of the table.
func PrintTableDescription(w io.Writer, desc *types.TableDescription) {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true

	table.AddRow("TABLE", aws.ToString(desc.TableName))
	table.AddRow("STATUS", string(desc.TableStatus))
	table.AddRow("ARN", aws.ToString(desc.TableArn))
	if desc.CreationDateTime != nil {
		table.AddRow("CREATED", fmt.Sprintf("%s (%s)",
			desc.CreationDateTime.Format("2006-01-02 15:04:05"), humanize.Time(*desc.CreationDateTime)))
	}
	table.AddRow("ITEM COUNT", humanize.Comma(aws.ToInt64(desc.ItemCount)))
	table.AddRow("SIZE", humanize.Bytes(uint64(aws.ToInt64(desc.TableSizeBytes))))
	table.AddRow("KEY SCHEMA", formatKeySchema(desc.KeySchema))
	table.AddRow("ATTRIBUTES", formatAttributeDefinitions(desc.AttributeDefinitions))
	if desc.BillingModeSummary != nil {
		table.AddRow("BILLING MODE", string(desc.BillingModeSummary.BillingMode))
	}
	if desc.ProvisionedThroughput != nil {
		table.AddRow("THROUGHPUT", fmt.Sprintf("read=%d write=%d",
			aws.ToInt64(desc.ProvisionedThroughput.ReadCapacityUnits),
			aws.ToInt64(desc.ProvisionedThroughput.WriteCapacityUnits)))
	}
	for _, gsi := range desc.GlobalSecondaryIndexes {
		table.AddRow("GLOBAL INDEX", fmt.Sprintf("%s %s [%s] items=%s",
			aws.ToString(gsi.IndexName), gsi.IndexStatus, formatKeySchema(gsi.KeySchema),
			humanize.Comma(aws.ToInt64(gsi.ItemCount))))
	}
	for _, lsi := range desc.LocalSecondaryIndexes {
		table.AddRow("LOCAL INDEX", fmt.Sprintf("%s [%s] items=%s",
			aws.ToString(lsi.IndexName), formatKeySchema(lsi.KeySchema),
			humanize.Comma(aws.ToInt64(lsi.ItemCount))))
	}
	if desc.StreamSpecification != nil && aws.ToBool(desc.StreamSpecification.StreamEnabled) {
		table.AddRow("STREAM", string(desc.StreamSpecification.StreamViewType))
	}
	fmt.Fprintln(w, table)
}

func formatKeySchema(schema []types.KeySchemaElement) string {
	parts := make([]string, 0, len(schema))
	for _, k := range schema {
		parts = append(parts, fmt.Sprintf("%s(%s)", aws.ToString(k.AttributeName), k.KeyType))
	}
	return strings.Join(parts, ", ")
}

func formatAttributeDefinitions(defs []types.AttributeDefinition) string {
	parts := make([]string, 0, len(defs))
	for _, d := range defs {
		parts = append(parts, fmt.Sprintf("%s:%s", aws.ToString(d.AttributeName), d.AttributeType))
	}
	return strings.Join(parts, ", ")
}
