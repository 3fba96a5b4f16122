package tollgate

import "github.com/xraph/tollgate/id"

// ID is the identifier type for Tollgate-minted records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
