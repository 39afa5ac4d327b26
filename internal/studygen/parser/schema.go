package parser

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// A reply "matches" when it is a non-empty container of the expected shape.
const (
	recordListSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {"type": "object", "minProperties": 1}
}`
	recordObjectSchema = `{
  "type": "object",
  "minProperties": 1
}`
)

type shapeSchema struct {
	schema *jsonschema.Schema
}

func (s shapeSchema) matches(v any) bool {
	if s.schema == nil {
		return false
	}
	return s.schema.Validate(v) == nil
}

var (
	schemasOnce sync.Once
	listShape   shapeSchema
	objectShape shapeSchema
)

func arraySchema() shapeSchema {
	schemasOnce.Do(compileSchemas)
	return listShape
}

func objectSchema() shapeSchema {
	schemasOnce.Do(compileSchemas)
	return objectShape
}

func compileSchemas() {
	listShape = shapeSchema{schema: mustCompile("record-list.json", recordListSchema)}
	objectShape = shapeSchema{schema: mustCompile("record-object.json", recordObjectSchema)}
}

func mustCompile(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic("parser: add schema " + name + ": " + err.Error())
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic("parser: compile schema " + name + ": " + err.Error())
	}
	return schema
}
