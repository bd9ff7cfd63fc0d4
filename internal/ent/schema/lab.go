package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	entmixin "octolab/internal/ent/mixin"
	"octolab/internal/enum"
)

// Lab holds the schema definition for the Lab entity.
//
// A Lab row is never deleted by the core: the status transition table's
// terminal states (FINISHED, FAILED) are the retention mechanism, and
// only the teardown worker may move a row into one.
type Lab struct {
	ent.Schema
}

func (Lab) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.UUID("owner_id", uuid.UUID{}).
			Immutable(),
		field.UUID("recipe_id", uuid.UUID{}).
			Immutable(),
		field.Enum("status").
			GoType(enum.LabStatus("")).
			Default(string(enum.LabStatusRequested)),
		field.Enum("runtime").
			GoType(enum.RuntimeType("")).
			Comment("Runtime backend this lab was provisioned on; fixed at creation"),
		field.JSON("runtime_meta", map[string]interface{}{}).
			Optional().
			Comment("Opaque, runtime-specific bookkeeping (container/network names, vm_id, vsock cid, ...)"),
		field.String("connection_url").
			Optional().
			Comment("Opaque connection endpoint handed to the external console (e.g. Guacamole)"),
		field.JSON("requested_intent", map[string]interface{}{}).
			Optional().
			Comment("Operator-supplied parameters, validated against the recipe's intent_schema"),
		field.Time("expires_at").
			Optional().
			Nillable(),
		field.Enum("evidence_state").
			GoType(enum.EvidenceState("")).
			Default(string(enum.EvidenceStateCollecting)),
		field.Time("evidence_finalized_at").
			Optional().
			Nillable(),
		field.Time("teardown_claimed_at").
			Optional().
			Nillable().
			Comment("Set by the teardown worker that claimed this row for processing; a claim older than the worker's per-lab timeout is treated as abandoned and reclaimable"),
	}
}

func (Lab) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("owner", User.Type).
			Ref("labs").
			Field("owner_id").
			Required().
			Unique().
			Immutable(),
		edge.From("recipe", Recipe.Type).
			Ref("labs").
			Field("recipe_id").
			Required().
			Unique().
			Immutable(),
	}
}

func (Lab) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("owner_id"),
		index.Fields("status"),
	}
}

func (Lab) Mixin() []ent.Mixin {
	return []ent.Mixin{
		entmixin.TimestampMixin{},
	}
}
