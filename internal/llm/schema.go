package llm

import "github.com/google/generative-ai-go/genai"

// SchemaType names a JSON type in a response schema.
type SchemaType string

// Schema types supported by structured generation.
const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
)

// Schema constrains the shape of a structured response. It is a
// provider-neutral subset of OpenAPI schema.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Required    []string
}

// toGenai converts a schema to the Gemini representation.
func (s *Schema) toGenai() *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Items:       s.Items.toGenai(),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = prop.toGenai()
		}
	}
	return out
}

func genaiType(t SchemaType) genai.Type {
	switch t {
	case TypeObject:
		return genai.TypeObject
	case TypeArray:
		return genai.TypeArray
	case TypeInteger:
		return genai.TypeInteger
	case TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

// StringArray is an array of strings.
func StringArray(description string) *Schema {
	return &Schema{Type: TypeArray, Description: description, Items: &Schema{Type: TypeString}}
}
