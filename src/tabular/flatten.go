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
package tabular

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goccy/go-json"

	"github.com/edasque/DynamoDBtoCSV/src/ddb"
)

// FlatRecord maps a column name to its rendered value. Only attributes present
// on the source row are keys.
type FlatRecord map[string]string

// Flattener turns typed rows into flat records and grows the HeaderSet as new
// attribute names show up.
type Flattener struct {
	headers *HeaderSet
}

func NewFlattener(headers *HeaderSet) *Flattener {
	return &Flattener{headers: headers}
}

func (f *Flattener) Headers() *HeaderSet {
	return f.headers
}

// Flatten converts every row of a page. If any row fails, no record of the page
// is returned, but names already added to the HeaderSet stay.
func (f *Flattener) Flatten(rows []ddb.Row) ([]FlatRecord, error) {
	records := make([]FlatRecord, 0, len(rows))
	for i, row := range rows {
		record, err := f.FlattenRow(row)
		if err != nil {
			return nil, fmt.Errorf("flatten row %d: %w", i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// FlattenRow converts a single row. Item attributes arrive as a Go map, so
// names first seen on the same row are appended in lexical order.
func (f *Flattener) FlattenRow(row ddb.Row) (FlatRecord, error) {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	record := make(FlatRecord, len(row))
	columns := make([]string, 0, len(names))
	for _, name := range names {
		value, err := RenderValue(row[name])
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		column := strings.TrimSpace(name)
		columns = append(columns, column)
		record[column] = value
	}
	for _, column := range columns {
		f.headers.Add(column)
	}
	return record, nil
}

// RenderValue renders one attribute value as a single CSV field.
func RenderValue(av types.AttributeValue) (string, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	case *types.AttributeValueMemberBOOL:
		return strconv.FormatBool(v.Value), nil
	case *types.AttributeValueMemberB:
		return base64.StdEncoding.EncodeToString(v.Value), nil
	case *types.AttributeValueMemberSS:
		return strings.Join(v.Value, ","), nil
	case *types.AttributeValueMemberNS:
		return strings.Join(v.Value, ","), nil
	case *types.AttributeValueMemberBS:
		encoded := make([]string, 0, len(v.Value))
		for _, b := range v.Value {
			encoded = append(encoded, base64.StdEncoding.EncodeToString(b))
		}
		return strings.Join(encoded, ","), nil
	case *types.AttributeValueMemberNULL:
		return "", nil
	case *types.AttributeValueMemberM, *types.AttributeValueMemberL:
		plain, err := unmarshalValue(av)
		if err != nil {
			return "", err
		}
		bs, err := json.Marshal(plain)
		if err != nil {
			return "", fmt.Errorf("encode nested value: %w", err)
		}
		return string(bs), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported attribute value type %T", av)
	}
}

// numberLiteral keeps the digits of an N value exactly as stored.
type numberLiteral string

func (n numberLiteral) MarshalJSON() ([]byte, error) {
	return []byte(n), nil
}

// unmarshalValue strips the type tags off a value, producing plain Go values
// that encode to the JSON a reader would expect.
func unmarshalValue(av types.AttributeValue) (interface{}, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return numberLiteral(v.Value), nil
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberB:
		return v.Value, nil
	case *types.AttributeValueMemberSS:
		return v.Value, nil
	case *types.AttributeValueMemberNS:
		nums := make([]numberLiteral, 0, len(v.Value))
		for _, n := range v.Value {
			nums = append(nums, numberLiteral(n))
		}
		return nums, nil
	case *types.AttributeValueMemberBS:
		return v.Value, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]interface{}, len(v.Value))
		for k, elem := range v.Value {
			plain, err := unmarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", k, err)
			}
			m[k] = plain
		}
		return m, nil
	case *types.AttributeValueMemberL:
		list := make([]interface{}, 0, len(v.Value))
		for i, elem := range v.Value {
			plain, err := unmarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list = append(list, plain)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", av)
	}
}
