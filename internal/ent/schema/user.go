package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	entmixin "octolab/internal/ent/mixin"
)

// User holds the schema definition for the User entity.
type User struct {
	ent.Schema
}

func (User) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.String("email").
			NotEmpty().
			Comment("Unique login email, stored as given; the schema does not lowercase it"),
		field.String("password_hash").
			Sensitive().
			Comment("bcrypt hash; never read back through the API"),
	}
}

func (User) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("labs", Lab.Type),
	}
}

func (User) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("email").Unique(),
	}
}

func (User) Mixin() []ent.Mixin {
	return []ent.Mixin{
		entmixin.TimestampMixin{},
	}
}
