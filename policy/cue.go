package policy

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	asseterrors "github.com/jmgilman/go/assets/errors"
)

//go:embed schema.cue
var schemaSource []byte

// ParseCUE evaluates a CUE policy override against the policy schema and
// decodes the concrete result over Default. CUE sources may use
// references and arithmetic between fields.
func ParseCUE(data []byte) (*Policy, error) {
	cctx := cuecontext.New()

	schema := cctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid policy schema")
	}

	value := cctx.CompileBytes(data, cue.Filename("policy.cue"))
	if err := value.Err(); err != nil {
		return nil, asseterrors.Wrap(fmt.Errorf("compile policy: %w", err),
			asseterrors.CodeInvalidConfig, "invalid policy file")
	}

	value = schema.LookupPath(cue.ParsePath("#Policy")).Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, asseterrors.Wrap(fmt.Errorf("validate policy: %w", err),
			asseterrors.CodeInvalidConfig, "policy does not match schema")
	}

	// JSON is a subset of YAML, so the YAML decoder applies the overlay
	// rules and custom field types.
	js, err := value.MarshalJSON()
	if err != nil {
		return nil, asseterrors.Wrap(fmt.Errorf("export policy: %w", err),
			asseterrors.CodeInvalidConfig, "invalid policy file")
	}
	return Parse(js)
}
