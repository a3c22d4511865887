package service

import (
	"github.com/shopspring/decimal"

	"alphapilot/internal/policy"
	"alphapilot/internal/sizing"
)

// PolicySizer sizes opens with the sizing fractions of the current risk
// policy, re-read on every call so edits apply between cycles.
type PolicySizer struct {
	Loader *policy.Loader
}

func (s PolicySizer) TargetNotional(in sizing.Inputs) decimal.Decimal {
	pol, err := s.Loader.Load()
	if err != nil {
		pol = policy.Default()
	}
	return sizing.TargetNotional(pol.Sizing, in)
}
