package domain

import (
	"crypto/md5"
	"fmt"

	"github.com/google/uuid"
)

// ChunkID derives the content-addressed chunk id for (collectionID, ownerID,
// data+vectorSource) when keepDuplicate is false, formatted as an 8-4-4-4-12
// UUID so downstream storage (vector store point ids) accepts it unmodified.
// When keepDuplicate is true a fresh random UUID is returned instead, so
// repeated ingests of identical content create distinct points.
//
// Any deviation from this derivation breaks cross-process idempotence:
// re-ingesting the same content must always resolve to the same id.
func ChunkID(collectionID, ownerID, data, vectorSource string, keepDuplicate bool) string {
	if keepDuplicate {
		return uuid.New().String()
	}
	sum := md5.Sum([]byte(collectionID + ":" + ownerID + ":" + data + vectorSource))
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

// FeedbackID derives the content-addressed feedback document id for
// (collectionID, ownerID, query). Feedback ids are always content-addressed;
// there is no keepDuplicate escape hatch because the merge step (dense
// cosine > 0.9) is what actually controls whether two queries share a doc.
func FeedbackID(collectionID, ownerID, query string) string {
	sum := md5.Sum([]byte(collectionID + ":" + ownerID + ":" + query))
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}
