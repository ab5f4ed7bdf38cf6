package contract

import (
	"fmt"
	"sort"

	"pospanel/internal/config"
	perrors "pospanel/internal/errors"
)

// Registry resolves retailer names to validated data contracts. It is
// built once from configuration and read-only afterwards.
type Registry struct {
	contracts map[string]*RetailerDataContract
}

// NewRegistry builds and validates every configured contract. A retailer
// whose contract cannot compute price and base price, or whose flags
// are not backed by bound columns, is rejected here rather than at
// derive time.
func NewRegistry(cfg config.PipelineConfig) (*Registry, error) {
	if len(cfg.RetailerDataContracts) == 0 {
		return nil, perrors.NewConfigError("", "no retailer data contracts configured")
	}

	contracts := make(map[string]*RetailerDataContract, len(cfg.RetailerDataContracts))
	for retailer, cc := range cfg.RetailerDataContracts {
		flags, ok := cfg.Retailers[retailer]
		if !ok {
			return nil, perrors.NewConfigError(retailer, "no retailers entry for contract")
		}

		c, err := fromConfig(retailer, cc, flags,
			cfg.VolumeSalesFactorByRetailer[retailer],
			cfg.MinNonPromotedUnitsFor(retailer))
		if err != nil {
			return nil, perrors.NewConfigError(retailer, fmt.Sprintf("inconsistent contract: %v", err))
		}
		contracts[retailer] = c
	}

	return &Registry{contracts: contracts}, nil
}

// Resolve returns the contract for a retailer, or a ConfigurationError
// when none is registered.
func (r *Registry) Resolve(retailer string) (*RetailerDataContract, error) {
	c, ok := r.contracts[retailer]
	if !ok {
		return nil, perrors.NewConfigError(retailer, "no data contract registered")
	}
	return c, nil
}

// Retailers returns the registered retailer names in sorted order so
// pipeline iteration is deterministic.
func (r *Registry) Retailers() []string {
	names := make([]string, 0, len(r.contracts))
	for name := range r.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered contracts.
func (r *Registry) Len() int {
	return len(r.contracts)
}
