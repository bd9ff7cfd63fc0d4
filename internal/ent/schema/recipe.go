package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	entmixin "octolab/internal/ent/mixin"
)

// Recipe holds the schema definition for the Recipe entity.
//
// Recipes are authored and maintained by an external collaborator
// (the recipe/blueprint generation pipeline); the core only reads them.
type Recipe struct {
	ent.Schema
}

func (Recipe) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.String("name").
			NotEmpty(),
		field.String("target_software").
			NotEmpty(),
		field.String("target_version_constraint").
			Optional(),
		field.String("exploit_family").
			Optional(),
		field.JSON("blueprint", map[string]interface{}{}).
			Comment("Runtime-specific provisioning blueprint (compose project, firecracker bundle manifest, ...)"),
		field.JSON("intent_schema", map[string]interface{}{}).
			Optional().
			Comment("JSON Schema that a lab's requested_intent must satisfy"),
	}
}

func (Recipe) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("labs", Lab.Type),
	}
}

func (Recipe) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("target_software"),
	}
}

func (Recipe) Mixin() []ent.Mixin {
	return []ent.Mixin{
		entmixin.TimestampMixin{},
	}
}
