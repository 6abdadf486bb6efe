package storage

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// The codec moves domain values in and out of DynamoDB through a generic
// document: encoding/json turns a value into nil / bool / float64 / string /
// []any / map[string]any, and the functions here map that shape onto
// types.AttributeValue recursively. Going the other way, numbers are tried
// as int64 first, then float64, then kept as their raw string so nothing
// stored is ever lost to a narrower type.

// marshalDocument encodes any JSON-serializable value as a DynamoDB map
// attribute suitable for storing under a single item attribute.
func marshalDocument(v any) (map[string]types.AttributeValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document is not a JSON object: %w", err)
	}
	av, err := encodeValue(doc)
	if err != nil {
		return nil, err
	}
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("document encoded to %T, want map", av)
	}
	return m.Value, nil
}

// unmarshalDocument decodes a DynamoDB map attribute into out, the inverse
// of marshalDocument.
func unmarshalDocument(item map[string]types.AttributeValue, out any) error {
	doc, err := decodeValue(&types.AttributeValueMemberM{Value: item})
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("re-marshal document: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}

// encodeValue maps a generic JSON value onto an AttributeValue.
func encodeValue(v any) (types.AttributeValue, error) {
	switch val := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: val}, nil
	case float64:
		return &types.AttributeValueMemberN{Value: formatNumber(val)}, nil
	case json.Number:
		return &types.AttributeValueMemberN{Value: val.String()}, nil
	case string:
		return &types.AttributeValueMemberS{Value: val}, nil
	case []any:
		list := make([]types.AttributeValue, 0, len(val))
		for i, elem := range val {
			av, err := encodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			list = append(list, av)
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case map[string]any:
		m := make(map[string]types.AttributeValue, len(val))
		for key, elem := range val {
			av, err := encodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", key, err)
			}
			m[key] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	default:
		return nil, fmt.Errorf("cannot encode value of type %T", v)
	}
}

// decodeValue maps an AttributeValue back onto a generic JSON value.
func decodeValue(av types.AttributeValue) (any, error) {
	switch val := av.(type) {
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberBOOL:
		return val.Value, nil
	case *types.AttributeValueMemberN:
		return decodeNumber(val.Value), nil
	case *types.AttributeValueMemberS:
		return val.Value, nil
	case *types.AttributeValueMemberL:
		list := make([]any, 0, len(val.Value))
		for i, elem := range val.Value {
			decoded, err := decodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			list = append(list, decoded)
		}
		return list, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]any, len(val.Value))
		for key, elem := range val.Value {
			decoded, err := decodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", key, err)
			}
			m[key] = decoded
		}
		return m, nil
	default:
		return nil, fmt.Errorf("cannot decode attribute of type %T", av)
	}
}

// decodeNumber tries int64, then float64, then keeps the raw string.
func decodeNumber(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// formatNumber renders a float64 without losing integer-ness: JSON decoding
// gives every number as float64, but whole values should store as integers.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
