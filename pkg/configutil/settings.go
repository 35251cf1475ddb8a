// Package configutil decodes the free-form settings blocks that select and
// configure a vendor (transport, stt, tts, llm).
package configutil

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Settings is one vendor's raw settings block as read from the config file.
type Settings map[string]any

// Decode validates input against schema, then decodes it into out. A comma
// separated string decodes into a []string field.
func Decode(input Settings, schema Schema, out any) error {
	if err := schema.Validate(input); err != nil {
		return err
	}
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]any(input)); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}

// Keys lists the mapstructure keys of a struct value, for use as a schema's
// optional keys.
func Keys(v any) []string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys = append(keys, name)
	}
	return keys
}

// ExpandEnv replaces $VAR and ${VAR} in every string value, nested maps and
// lists included. The input map is modified in place.
func ExpandEnv(input Settings) Settings {
	for k, v := range input {
		input[k] = expandAny(v)
	}
	return input
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = expandAny(item)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if ks, ok := k.(string); ok {
				out[ks] = expandAny(item)
			}
		}
		return out
	default:
		return v
	}
}

// normalizeKey makes api_key, api-key and APIKey the same key.
func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	return strings.ReplaceAll(value, "-", "")
}
