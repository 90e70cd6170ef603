// Package vector manages the Weaviate schema for documentation chunks.
// Chunks are routed into one class per doc set so that a doc set can be
// re-ingested or dropped without touching the others.
package vector

import (
	"context"
	"regexp"
	"strings"

	"github.com/weaviate/weaviate/entities/models"
)

// BaseClassName holds chunks whose source carries no doc-set label.
const BaseClassName = "DocChunk"

var classNameStrip = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ClassNameFor maps a routing key (the doc-set label) to a Weaviate class
// name. The empty key maps to the base class; anything else becomes a
// capitalized alphanumeric suffix, e.g. "spring-docs" -> "DocChunkSpringDocs".
func ClassNameFor(routeKey string) string {
	if routeKey == "" {
		return BaseClassName
	}
	var b strings.Builder
	b.WriteString(BaseClassName)
	for _, part := range strings.FieldsFunc(routeKey, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' ' || r == '/'
	}) {
		part = classNameStrip.ReplaceAllString(part, "")
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// SchemaClient is the subset of Weaviate schema operations EnsureClass needs.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func chunkProperties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "url", DataType: []string{"string"}}, // exact match for delete/count
		{Name: "hash", DataType: []string{"string"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "title", DataType: []string{"text"}},
		{Name: "package", DataType: []string{"string"}},
		{Name: "docSet", DataType: []string{"string"}},
		{Name: "docType", DataType: []string{"string"}},
		{Name: "sourceName", DataType: []string{"text"}},
	}
}

// EnsureClass creates the chunk class if missing, or adds any properties a
// previous version of the schema did not have yet. Vectors are always
// provided by the caller, never by a Weaviate vectorizer module.
func EnsureClass(ctx context.Context, client SchemaClient, className string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := chunkProperties()
	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:       className,
			Description: "A chunk of documentation text with its provenance",
			Vectorizer:  "none",
			Properties:  properties,
		})
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range properties {
		if !existing[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}
	return nil
}
