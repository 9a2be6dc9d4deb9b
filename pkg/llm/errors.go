package llm

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"conductor/pkg/faults"
)

// classifySDKError maps a provider SDK error onto the fault taxonomy.
// HTTP status codes take priority; anything else falls through to the
// string heuristics in faults.KindOf.
func classifySDKError(provider string, err error) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf("%s completion failed", provider)

	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return statusFault(anthErr.StatusCode, err, msg)
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return statusFault(oaiErr.StatusCode, err, msg)
	}

	return faults.Wrap(faults.KindOf(err), err, msg)
}

func statusFault(code int, err error, msg string) *faults.Fault {
	kind := faults.KindTerminal
	if code == 429 || code >= 500 {
		kind = faults.KindTransient
	}

	return &faults.Fault{Kind: kind, Err: err, Message: msg, StatusCode: code}
}
