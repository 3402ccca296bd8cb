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
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goccy/go-json"
)

// Attribute values travel through flags and diagnostics in the DynamoDB wire
// format, e.g. {":id": {"S": "42"}, ":n": {"N": "7"}}.

// ParseAttributeValueMap decodes a DynamoDB JSON object into attribute values.
func ParseAttributeValueMap(data []byte) (map[string]types.AttributeValue, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse attribute value map: %w", err)
	}
	result := make(map[string]types.AttributeValue, len(raw))
	for name, msg := range raw {
		av, err := parseAttributeValue(msg)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		result[name] = av
	}
	return result, nil
}

func parseAttributeValue(msg json.RawMessage) (types.AttributeValue, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(msg, &tagged); err != nil {
		return nil, fmt.Errorf("expected a type-tagged object: %w", err)
	}
	if len(tagged) != 1 {
		return nil, fmt.Errorf("expected exactly one type tag, found %d", len(tagged))
	}
	for tag, body := range tagged {
		switch tag {
		case "S":
			var v string
			err := json.Unmarshal(body, &v)
			return &types.AttributeValueMemberS{Value: v}, err
		case "N":
			var v string
			err := json.Unmarshal(body, &v)
			return &types.AttributeValueMemberN{Value: v}, err
		case "B":
			var v []byte
			err := json.Unmarshal(body, &v)
			return &types.AttributeValueMemberB{Value: v}, err
		case "BOOL":
			var v bool
			err := json.Unmarshal(body, &v)
			return &types.AttributeValueMemberBOOL{Value: v}, err
		case "NULL":
			var v bool
			err := json.Unmarshal(body, &v)
			return &types.AttributeValueMemberNULL{Value: v}, err
		case "SS":
			var v []string
			err := json.Unmarshal(body, &v)
			return &types.AttributeValueMemberSS{Value: v}, err
		case "NS":
			var v []string
			err := json.Unmarshal(body, &v)
			return &types.AttributeValueMemberNS{Value: v}, err
		case "BS":
			var v [][]byte
			err := json.Unmarshal(body, &v)
			return &types.AttributeValueMemberBS{Value: v}, err
		case "M":
			m, err := ParseAttributeValueMap(body)
			if err != nil {
				return nil, err
			}
			return &types.AttributeValueMemberM{Value: m}, nil
		case "L":
			var elems []json.RawMessage
			if err := json.Unmarshal(body, &elems); err != nil {
				return nil, err
			}
			list := make([]types.AttributeValue, 0, len(elems))
			for i, elem := range elems {
				av, err := parseAttributeValue(elem)
				if err != nil {
					return nil, fmt.Errorf("list element %d: %w", i, err)
				}
				list = append(list, av)
			}
			return &types.AttributeValueMemberL{Value: list}, nil
		default:
			return nil, fmt.Errorf("unknown type tag %q", tag)
		}
	}
	return nil, nil
}

// MarshalAttributeValueMap is the inverse of ParseAttributeValueMap. Keys are
// emitted in sorted order so the output is stable.
func MarshalAttributeValueMap(m map[string]types.AttributeValue) ([]byte, error) {
	raw, err := taggedMap(m)
	if err != nil {
		return nil, err
	}
	return raw.MarshalJSON()
}

func taggedMap(m map[string]types.AttributeValue) (orderedMap, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(orderedMap, 0, len(keys))
	for _, k := range keys {
		v, err := tagged(m[k])
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out = append(out, orderedEntry{key: k, value: v})
	}
	return out, nil
}

func tagged(av types.AttributeValue) (map[string]interface{}, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return map[string]interface{}{"S": v.Value}, nil
	case *types.AttributeValueMemberN:
		return map[string]interface{}{"N": v.Value}, nil
	case *types.AttributeValueMemberB:
		return map[string]interface{}{"B": v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return map[string]interface{}{"BOOL": v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return map[string]interface{}{"NULL": v.Value}, nil
	case *types.AttributeValueMemberSS:
		return map[string]interface{}{"SS": v.Value}, nil
	case *types.AttributeValueMemberNS:
		return map[string]interface{}{"NS": v.Value}, nil
	case *types.AttributeValueMemberBS:
		return map[string]interface{}{"BS": v.Value}, nil
	case *types.AttributeValueMemberM:
		inner, err := taggedMap(v.Value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"M": inner}, nil
	case *types.AttributeValueMemberL:
		list := make([]interface{}, 0, len(v.Value))
		for _, elem := range v.Value {
			t, err := tagged(elem)
			if err != nil {
				return nil, err
			}
			list = append(list, t)
		}
		return map[string]interface{}{"L": list}, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", av)
	}
}

type orderedEntry struct {
	key   string
	value interface{}
}

// orderedMap marshals as a JSON object preserving entry order.
type orderedMap []orderedEntry

func (om orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, e := range om {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

// FormatCursor renders a cursor for the operator. A nil cursor renders as "".
func FormatCursor(c Cursor) string {
	if c == nil {
		return ""
	}
	bs, err := MarshalAttributeValueMap(c)
	if err != nil {
		return fmt.Sprintf("<unprintable cursor: %v>", err)
	}
	return string(bs)
}

// ParseCursor accepts the output of FormatCursor.
func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return nil, nil
	}
	m, err := ParseAttributeValueMap([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("parse cursor: %w", err)
	}
	return Cursor(m), nil
}
