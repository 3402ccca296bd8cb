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
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
)

// DefaultPageLimit is the per-request item limit used when none is configured.
const DefaultPageLimit = 1000

// Cursor is the LastEvaluatedKey of a page. A nil Cursor means the result set
// is exhausted.
type Cursor map[string]types.AttributeValue

// Row is one item as returned by the table.
type Row = map[string]types.AttributeValue

// Page is the result of a single Scan or Query request.
type Page struct {
	Items []Row
	// Count is the number of matching items in this page. For COUNT requests
	// Items is empty and only Count is populated.
	Count            int32
	ScannedCount     int32
	LastEvaluatedKey Cursor
}

// API is the subset of *dynamodb.Client used by this package.
type API interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type RequestSpec struct {
	TableName string
	IndexName string
	// A non-empty KeyConditionExpression turns the request into a Query.
	KeyConditionExpression    string
	ExpressionAttributeValues map[string]types.AttributeValue
	Projection                []string
	CountOnly                 bool
	Limit                     int32
}

func (rs *RequestSpec) IsQuery() bool {
	return rs.KeyConditionExpression != ""
}

func (rs *RequestSpec) Validate() error {
	if rs.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if rs.CountOnly && !rs.IsQuery() {
		return fmt.Errorf("count requires a key condition expression")
	}
	if rs.IsQuery() && len(rs.ExpressionAttributeValues) == 0 {
		return fmt.Errorf("key condition expression %q has no bound values", rs.KeyConditionExpression)
	}
	if rs.Limit < 0 {
		return fmt.Errorf("page limit must not be negative")
	}
	return nil
}

// TableFetcher issues one Scan or Query per Fetch call.
type TableFetcher struct {
	api  API
	spec RequestSpec

	projectionExpression     *string
	expressionAttributeNames map[string]string
}

func NewTableFetcher(api API, spec RequestSpec) *TableFetcher {
	if spec.Limit == 0 {
		spec.Limit = DefaultPageLimit
	}
	f := &TableFetcher{api: api, spec: spec}
	f.projectionExpression, f.expressionAttributeNames = aliasProjection(spec.Projection)
	return f
}

// aliasProjection maps each selected attribute to a positional placeholder
// (#0, #1, ...) so that reserved words can be selected.
func aliasProjection(fields []string) (*string, map[string]string) {
	if len(fields) == 0 {
		return nil, nil
	}
	names := make(map[string]string, len(fields))
	placeholders := make([]string, 0, len(fields))
	for i, field := range fields {
		placeholder := fmt.Sprintf("#%d", i)
		names[placeholder] = strings.TrimSpace(field)
		placeholders = append(placeholders, placeholder)
	}
	return aws.String(strings.Join(placeholders, ",")), names
}

func (f *TableFetcher) selectMode() types.Select {
	switch {
	case f.spec.CountOnly:
		return types.SelectCount
	case len(f.spec.Projection) > 0:
		return types.SelectSpecificAttributes
	case f.spec.IndexName != "":
		return types.SelectAllProjectedAttributes
	default:
		return types.SelectAllAttributes
	}
}

func (f *TableFetcher) Fetch(ctx context.Context, cursor Cursor) (*Page, error) {
	if f.spec.IsQuery() {
		return f.query(ctx, cursor)
	}
	return f.scan(ctx, cursor)
}

func (f *TableFetcher) scan(ctx context.Context, cursor Cursor) (*Page, error) {
	input := &dynamodb.ScanInput{
		TableName:                aws.String(f.spec.TableName),
		ProjectionExpression:     f.projectionExpression,
		ExpressionAttributeNames: f.expressionAttributeNames,
		Limit:                    aws.Int32(f.spec.Limit),
		ExclusiveStartKey:        cursor,
	}
	if f.spec.IndexName != "" {
		input.IndexName = aws.String(f.spec.IndexName)
	}
	log.Debugf("scan %q limit=%d start=%s", f.spec.TableName, f.spec.Limit, FormatCursor(cursor))
	out, err := f.api.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("scan table %q: %w", f.spec.TableName, err)
	}
	return &Page{
		Items:            out.Items,
		Count:            out.Count,
		ScannedCount:     out.ScannedCount,
		LastEvaluatedKey: nonEmptyCursor(out.LastEvaluatedKey),
	}, nil
}

func (f *TableFetcher) query(ctx context.Context, cursor Cursor) (*Page, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(f.spec.TableName),
		Select:                    f.selectMode(),
		KeyConditionExpression:    aws.String(f.spec.KeyConditionExpression),
		ExpressionAttributeValues: f.spec.ExpressionAttributeValues,
		ProjectionExpression:      f.projectionExpression,
		ExpressionAttributeNames:  f.expressionAttributeNames,
		Limit:                     aws.Int32(f.spec.Limit),
		ExclusiveStartKey:         cursor,
	}
	if f.spec.IndexName != "" {
		input.IndexName = aws.String(f.spec.IndexName)
	}
	if f.spec.CountOnly {
		// COUNT cannot be combined with a projection.
		input.ProjectionExpression = nil
		input.ExpressionAttributeNames = nil
	}
	log.Debugf("query %q select=%s limit=%d start=%s", f.spec.TableName, input.Select, f.spec.Limit, FormatCursor(cursor))
	out, err := f.api.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query table %q: %w", f.spec.TableName, err)
	}
	return &Page{
		Items:            out.Items,
		Count:            out.Count,
		ScannedCount:     out.ScannedCount,
		LastEvaluatedKey: nonEmptyCursor(out.LastEvaluatedKey),
	}, nil
}

func nonEmptyCursor(key map[string]types.AttributeValue) Cursor {
	if len(key) == 0 {
		return nil
	}
	return Cursor(key)
}
