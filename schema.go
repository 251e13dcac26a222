package dispatchy

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jsvalidator "github.com/santhosh-tekuri/jsonschema/v6"
)

var errNilSchema = errors.New("schema reflection returned nil")

// generateSchema reflects T into a JSON Schema map and compiles a validator
// for it. Runs once per NewTool/NewExtractor, never per call. With strict set,
// every object in the tree forbids unknown keys and requires all declared
// properties (the shape OpenAI structured outputs expects).
func generateSchema[T any](strict bool) (map[string]any, *jsvalidator.Schema, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	rtyp := typ
	for rtyp.Kind() == reflect.Pointer {
		rtyp = rtyp.Elem()
	}
	reflector := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true, // inline everything: LLM providers reject $ref/$defs
		AllowAdditionalProperties: true,
		Mapper:                    customTypeMapper,
	}
	schema := reflector.ReflectFromType(rtyp)
	if schema == nil {
		return nil, nil, errNilSchema
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, nil, err
	}
	enrichSchemaFromStructTags(schemaMap, typ)
	if strict {
		applyStrictMode(schemaMap)
	}
	stripSchemaIDs(schemaMap)
	compiled, err := compileRawSchema(schemaMap)
	if err != nil {
		return nil, nil, err
	}
	return schemaMap, compiled, nil
}

// enrichSchemaFromStructTags folds plain `description:` and `enum:` struct
// tags into the top-level properties, so arg structs don't need the longer
// invopop jsonschema tag syntax for the two most common annotations. The
// property key comes from the first segment of the json tag.
func enrichSchemaFromStructTags(schemaMap map[string]any, typ reflect.Type) {
	if schemaMap == nil || typ == nil {
		return
	}
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return
	}
	props, ok := schemaMap["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return
	}
	for i := range typ.NumField() {
		field := typ.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		if desc := field.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		if enumTag := field.Tag.Get("enum"); enumTag != "" {
			values := strings.Split(enumTag, ",")
			enum := make([]any, len(values))
			for j, v := range values {
				enum[j] = strings.TrimSpace(v)
			}
			prop["enum"] = enum
		}
	}
}

// applyStrictMode closes every object node: additionalProperties false plus a
// required array listing all properties, sorted so regenerated schemas stay
// byte-stable.
func applyStrictMode(schemaMap map[string]any) {
	walkSchema(schemaMap, func(n map[string]any) {
		props, isObj := n["properties"].(map[string]any)
		if !isObj {
			if _, bare := n["properties"]; bare {
				n["additionalProperties"] = false
			}
			return
		}
		n["additionalProperties"] = false
		if len(props) == 0 {
			return
		}
		names := slices.Sorted(maps.Keys(props))
		required := make([]any, len(names))
		for i, name := range names {
			required[i] = name
		}
		n["required"] = required
	})
}

// stripSchemaIDs drops id and $id everywhere so compilation never reaches for
// external resolution.
func stripSchemaIDs(schemaMap map[string]any) {
	walkSchema(schemaMap, func(n map[string]any) {
		delete(n, "id")
		delete(n, "$id")
	})
}

// compileRawSchema turns a schema map into a compiled validator without
// mutating the map.
func compileRawSchema(schemaMap map[string]any) (*jsvalidator.Schema, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}
	doc, err := jsvalidator.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	compiler := jsvalidator.NewCompiler()
	if err := compiler.AddResource("tool.schema.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("tool.schema.json")
}

// walkSchema visits every map node in the schema tree, parents before
// children, descending through nested maps and array items alike.
func walkSchema(schemaMap map[string]any, visit func(map[string]any)) {
	if schemaMap == nil {
		return
	}
	visit(schemaMap)
	for _, val := range schemaMap {
		walkSchemaValue(val, visit)
	}
}

func walkSchemaValue(val any, visit func(map[string]any)) {
	switch v := val.(type) {
	case map[string]any:
		walkSchema(v, visit)
	case []any:
		for _, item := range v {
			walkSchemaValue(item, visit)
		}
	}
}

type typeMapping struct {
	jsonType string
	format   string
}

var (
	customTypesMu sync.RWMutex
	customTypes   = make(map[reflect.Type]typeMapping)
)

// RegisterType overrides schema reflection for a Go type: fields of that type
// (and pointers to it) emit {"type": jsonType, "format": format} instead of a
// reflected object. Pass a value of the type, e.g. RegisterType(uuid.UUID{},
// "string", "uuid"); format may be empty. Register during startup, before the
// first NewTool or NewExtractor touches the type.
func RegisterType(emptyInstance any, jsonType, format string) {
	if emptyInstance == nil {
		panic("dispatchy: RegisterType emptyInstance must not be nil")
	}
	if jsonType == "" {
		panic("dispatchy: RegisterType jsonType must not be empty")
	}
	t := reflect.TypeOf(emptyInstance)
	customTypesMu.Lock()
	defer customTypesMu.Unlock()
	customTypes[t] = typeMapping{jsonType: jsonType, format: format}
}

// customTypeMapper feeds the RegisterType table to the reflector, which calls
// it for every type it visits and takes a non-nil result as final.
func customTypeMapper(t reflect.Type) *jsonschema.Schema {
	customTypesMu.RLock()
	m, ok := customTypes[t]
	customTypesMu.RUnlock()
	if !ok {
		return nil
	}
	return &jsonschema.Schema{Type: m.jsonType, Format: m.format}
}
