package ferry

import "github.com/ferrywork/ferry/id"

// ID is the primary identifier type for all Ferry entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
