package llm

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// A breakdown item is either a bare string or an object with a title and/or
// content.
const itemsSchema = `{
	"type": "array",
	"minItems": 1,
	"items": {
		"anyOf": [
			{"type": "string"},
			{
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"content": {"type": "string"}
				},
				"anyOf": [{"required": ["title"]}, {"required": ["content"]}]
			}
		]
	}
}`

const sectionsSchema = `{
	"type": "object",
	"required": ["sections"],
	"properties": {"sections": ` + itemsSchema + `}
}`

var (
	breakdownObjectSchema = jsonschema.MustCompileString("breakdown-object.json", sectionsSchema)
	breakdownArraySchema  = jsonschema.MustCompileString("breakdown-array.json", itemsSchema)
)
