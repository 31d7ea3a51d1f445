package policy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LoadFile reads thresholds from a TOML file such as
//
//	match_threshold = 0.65
//	outlier_threshold = 0.8
//
// Keys left out inherit from base.
func LoadFile(path string, base Policy) (Policy, error) {
	file, err := os.Open(path)
	if err != nil {
		return Policy{}, fmt.Errorf("open policy file %s: %w", path, err)
	}
	defer file.Close()

	var p Policy
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("decode policy file %s: %w", path, err)
	}
	p = p.Merge(base)
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return p, nil
}

// FileSource re-reads a TOML policy file on every call. A missing file yields
// Base.
type FileSource struct {
	Path string
	Base Policy
}

// Policy implements Source.
func (s FileSource) Policy(context.Context) (Policy, error) {
	p, err := LoadFile(s.Path, s.Base)
	if errors.Is(err, fs.ErrNotExist) {
		return s.Base, nil
	}
	return p, err
}
