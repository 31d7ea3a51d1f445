// Package policy supplies the tunable thresholds every detector and repair
// consults. Operations read the policy once when they start and pass the
// values down explicitly.
package policy

import (
	"context"
	"errors"
	"fmt"
)

const (
	DefaultMatchThreshold    = 0.6
	DefaultOutlierThreshold  = 0.75
	DefaultVerifiedThreshold = 0.99
	DefaultUnknownConfidence = 0.5
)

// Policy holds the thresholds used by the integrity engine.
type Policy struct {
	// MatchThreshold is the recognition confidence at which an automated
	// assignment is trustworthy enough to surface.
	MatchThreshold float64 `json:"match_threshold" toml:"match_threshold" yaml:"match_threshold"`
	// OutlierThreshold is the minimum similarity to an identity's centroid
	// before a descriptor counts as an outlier.
	OutlierThreshold float64 `json:"outlier_threshold" toml:"outlier_threshold" yaml:"outlier_threshold"`
	// VerifiedThreshold is the near-1 cutoff treated as verified-equivalent.
	VerifiedThreshold float64 `json:"verified_threshold" toml:"verified_threshold" yaml:"verified_threshold"`
	// UnknownConfidence is written to assigned links that have no confidence.
	UnknownConfidence float64 `json:"unknown_confidence" toml:"unknown_confidence" yaml:"unknown_confidence"`
}

// Default returns the built-in thresholds.
func Default() Policy {
	return Policy{
		MatchThreshold:    DefaultMatchThreshold,
		OutlierThreshold:  DefaultOutlierThreshold,
		VerifiedThreshold: DefaultVerifiedThreshold,
		UnknownConfidence: DefaultUnknownConfidence,
	}
}

// Merge returns p with every zero field taken from base.
func (p Policy) Merge(base Policy) Policy {
	if p.MatchThreshold == 0 {
		p.MatchThreshold = base.MatchThreshold
	}
	if p.OutlierThreshold == 0 {
		p.OutlierThreshold = base.OutlierThreshold
	}
	if p.VerifiedThreshold == 0 {
		p.VerifiedThreshold = base.VerifiedThreshold
	}
	if p.UnknownConfidence == 0 {
		p.UnknownConfidence = base.UnknownConfidence
	}
	return p
}

// Validate checks ranges and the ordering the repairs rely on.
func (p Policy) Validate() error {
	var errs []error
	check := func(name string, v float64) {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1], got %v", name, v))
		}
	}
	check("match_threshold", p.MatchThreshold)
	check("outlier_threshold", p.OutlierThreshold)
	check("verified_threshold", p.VerifiedThreshold)
	check("unknown_confidence", p.UnknownConfidence)
	if p.MatchThreshold >= p.VerifiedThreshold {
		errs = append(errs, fmt.Errorf("match_threshold %v must be below verified_threshold %v", p.MatchThreshold, p.VerifiedThreshold))
	}
	if p.UnknownConfidence >= p.VerifiedThreshold {
		errs = append(errs, fmt.Errorf("unknown_confidence %v must be below verified_threshold %v", p.UnknownConfidence, p.VerifiedThreshold))
	}
	return errors.Join(errs...)
}

// Source supplies the current policy.
type Source interface {
	Policy(ctx context.Context) (Policy, error)
}

// Static is a Source that always returns itself.
type Static Policy

// Policy implements Source.
func (s Static) Policy(context.Context) (Policy, error) {
	return Policy(s), nil
}
