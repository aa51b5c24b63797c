package mailbox

import "github.com/JPaulGrayson/QuackQuack/internal/sdk/types"

// allowedTransitions is the status machine's transition table (spec §4.A).
var allowedTransitions = map[types.Status][]types.Status{
	types.StatusPending:    {types.StatusApproved, types.StatusFailed},
	types.StatusApproved:   {types.StatusInProgress, types.StatusFailed},
	types.StatusInProgress: {types.StatusCompleted, types.StatusFailed},
	types.StatusRead:       {types.StatusInProgress},
	types.StatusCompleted:  {},
	types.StatusFailed:     {types.StatusPending},
}

func isAllowedTransition(from, to types.Status) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}
