package common

import "github.com/GiGurra/boa/pkg/boa"

// DefaultParamEnricher is the shared boa param wiring for all subcommands.
func DefaultParamEnricher() boa.ParamEnricher {
	return boa.ParamEnricherCombine(
		boa.ParamEnricherBool,
		boa.ParamEnricherName,
		boa.ParamEnricherShort,
	)
}
