package nbi

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct converts v into a Struct through its JSON form, so response
// keys follow the json tags of the core report types.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return structpb.NewStruct(m)
}

func field(s *structpb.Struct, key string) (*structpb.Value, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.GetFields()[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

// intField reads a required integral number.
func intField(s *structpb.Struct, key string) (int, error) {
	n, ok, err := optionalInt(s, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidRequest, key)
	}
	return n, nil
}

// optionalInt reads an integral number, reporting whether it was present.
func optionalInt(s *structpb.Struct, key string) (int, bool, error) {
	v, ok := field(s, key)
	if !ok {
		return 0, false, nil
	}
	num, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum {
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, key)
	}
	f := num.NumberValue
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false, fmt.Errorf("%w: %s must be a 32-bit integer, got %v", ErrInvalidRequest, key, f)
	}
	return int(f), true, nil
}

func optionalString(s *structpb.Struct, key string) (string, error) {
	v, ok := field(s, key)
	if !ok {
		return "", nil
	}
	str, isStr := v.GetKind().(*structpb.Value_StringValue)
	if !isStr {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidRequest, key)
	}
	return str.StringValue, nil
}

func optionalBool(s *structpb.Struct, key string) (bool, error) {
	v, ok := field(s, key)
	if !ok {
		return false, nil
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return false, fmt.Errorf("%w: %s must be a bool", ErrInvalidRequest, key)
	}
	return b.BoolValue, nil
}

func optionalStruct(s *structpb.Struct, key string) (*structpb.Struct, error) {
	v, ok := field(s, key)
	if !ok {
		return nil, nil
	}
	sv, isStruct := v.GetKind().(*structpb.Value_StructValue)
	if !isStruct {
		return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidRequest, key)
	}
	return sv.StructValue, nil
}
