package handlers

import (
	"context"
	"strings"

	"conductor/pkg/capability"
	"conductor/pkg/faults"
	"conductor/pkg/proto"
)

// knownAudiences are the segments the planner may target. When the model
// calls pick_audience without naming one, the turn suspends and the user
// chooses from this list.
var knownAudiences = []string{ //nolint:gochecknoglobals
	"gen-z",
	"millennials",
	"families",
	"professionals",
	"retirees",
}

// AudienceHandler resolves which audience segment a campaign targets.
type AudienceHandler struct{}

// NewAudienceHandler creates the pick_audience handler.
func NewAudienceHandler() *AudienceHandler {
	return &AudienceHandler{}
}

// AudienceDefinition describes pick_audience.
func AudienceDefinition() capability.Definition {
	return capability.Definition{
		Name:        "pick_audience",
		Description: "Confirm the target audience segment for a campaign. Omit the audience parameter to ask the user.",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"audience": {
					Type:        "string",
					Description: "Audience segment, if already known",
					Enum:        knownAudiences,
				},
				"campaign": {Type: "string", Description: "Campaign the audience applies to"},
			},
		},
	}
}

// Execute implements capability.Handler. A missing audience suspends the
// turn with a selection request rather than failing.
func (h *AudienceHandler) Execute(_ context.Context, _ string, params map[string]any, _ capability.Context) (map[string]any, error) {
	audience, _ := params["audience"].(string)
	audience = strings.ToLower(strings.TrimSpace(audience))
	if audience == "" {
		return nil, capability.NeedsInput(proto.InputSelection, "Which audience should this campaign target?", knownAudiences...)
	}

	for _, known := range knownAudiences {
		if audience == known {
			return map[string]any{"audience": audience, "confirmed": true}, nil
		}
	}

	return nil, faults.Newf(faults.KindTerminal, "unknown audience segment %q", audience)
}
