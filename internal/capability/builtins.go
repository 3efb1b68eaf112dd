package capability

// RegisterBuiltins installs the full set of portfolio analysis capabilities.
func RegisterBuiltins(r *Registry) error {
	for _, def := range []Definition{
		portfolioDefinition(),
		transactionsDefinition(),
		taxDefinition(),
		allocationDefinition(),
		complianceDefinition(),
		marketDefinition(),
	} {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultRegistry returns a registry with all built-in capabilities.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		panic(err)
	}
	return r
}
