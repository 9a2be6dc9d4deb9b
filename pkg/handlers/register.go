package handlers

import (
	"fmt"

	"conductor/pkg/capability"
	"conductor/pkg/llm"
)

// RegisterAll installs every built-in capability and seals the registry.
func RegisterAll(reg *capability.Registry, client llm.Client) error {
	regs := []struct {
		def     capability.Definition
		handler capability.Handler
	}{
		{CreativeDefinition(), NewCreativeHandler(client)},
		{CompetitorDefinition(), NewCompetitorHandler()},
		{TrendDefinition(), NewTrendHandler()},
		{AudienceDefinition(), NewAudienceHandler()},
	}
	for _, r := range regs {
		if err := reg.Register(r.def, r.handler); err != nil {
			return fmt.Errorf("register %s: %w", r.def.Name, err)
		}
	}
	reg.Seal()

	return nil
}
