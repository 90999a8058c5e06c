package storage

import "github.com/google/uuid"

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "documents"

// VectorDimension is the embedding size for text-embedding-3-small.
const VectorDimension = 1536

// idNamespace is the UUIDv5 namespace for deriving Qdrant point IDs
// from logical record IDs. Qdrant only accepts UUID or integer point
// IDs, so the "{source}_{chunk_index}" record ID is hashed into one;
// the mapping is deterministic, which is what makes re-adding the same
// source+index an overwrite.
var idNamespace = uuid.MustParse("2f0cbf21-6b5a-4f3e-9c54-7a90f7f2d1aa")

// pointUUID derives the Qdrant point UUID for a logical record ID.
func pointUUID(recordID string) string {
	return uuid.NewSHA1(idNamespace, []byte(recordID)).String()
}
