package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/jmgilman/go/fs/core"
	"gopkg.in/yaml.v3"

	asseterrors "github.com/jmgilman/go/assets/errors"
)

// Load reads a policy file and overlays it on Default. Files ending in
// .cue are evaluated as CUE, anything else is read as YAML. Keys absent
// from the file keep their default values. The result is validated.
func Load(fsys core.FS, p string) (*Policy, error) {
	data, err := fsys.ReadFile(p)
	if err != nil {
		return nil, asseterrors.WrapWithContext(err, asseterrors.CodeInvalidConfig,
			"failed to read policy file", map[string]interface{}{"path": p})
	}
	if path.Ext(p) == ".cue" {
		return ParseCUE(data)
	}
	return Parse(data)
}

// Parse decodes YAML policy bytes over Default and validates the result.
func Parse(data []byte) (*Policy, error) {
	p := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, asseterrors.Wrap(fmt.Errorf("decode policy: %w", err),
			asseterrors.CodeInvalidConfig, "invalid policy file")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode renders the policy as YAML.
func (p *Policy) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	return buf.Bytes(), nil
}
