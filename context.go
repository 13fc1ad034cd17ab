package ferry

import "context"

// Context is an alias for context.Context, threaded explicitly through
// every core operation alongside a clock and RNG where determinism
// matters (see retry.Policy) rather than carried on package globals.
type Context = context.Context
