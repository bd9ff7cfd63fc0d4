package labsvc

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"octolab/internal/apperr"
	"octolab/internal/ent"
)

// maxIntentBytes bounds the serialized size of a lab's requested_intent,
// per spec.md's "bounded (reject if serialized size > 64 KiB)" rule -
// an unbounded intent blob is the one place an authenticated caller
// gets to hand the core an arbitrarily large JSON document.
const maxIntentBytes = 64 * 1024

// validateIntent checks intent against recipe's IntentSchema (when the
// recipe declares one) and enforces the size bound unconditionally,
// following the teacher's gojsonschema.Validate(schemaLoader,
// documentLoader) idiom.
func validateIntent(recipe *ent.Recipe, intent map[string]interface{}) error {
	raw, err := json.Marshal(intent)
	if err != nil {
		return apperr.Validation("labsvc.validateIntent", fmt.Errorf("intent is not serializable: %w", err))
	}
	if len(raw) > maxIntentBytes {
		return apperr.Validation("labsvc.validateIntent", fmt.Errorf("requested_intent is %d bytes, exceeds %d byte limit", len(raw), maxIntentBytes))
	}

	if len(recipe.IntentSchema) == 0 {
		return nil
	}
	schemaRaw, err := json.Marshal(recipe.IntentSchema)
	if err != nil {
		return apperr.Internal("labsvc.validateIntent", fmt.Errorf("recipe intent_schema is not serializable: %w", err))
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaRaw)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return apperr.Validation("labsvc.validateIntent", fmt.Errorf("evaluating intent schema: %w", err))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return apperr.Validation("labsvc.validateIntent", fmt.Errorf("requested_intent does not satisfy recipe schema: %v", msgs))
	}
	return nil
}
