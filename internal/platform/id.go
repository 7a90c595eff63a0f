package platform

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.New().String()
}

// IdempotencyKey derives a stable de-duplication key for one logical step of
// one request. Downstream tools use it to treat a retried invocation as a
// no-op, so it must not vary across attempts.
func IdempotencyKey(requestID, activityName string) string {
	sum := sha256.Sum256([]byte(requestID + ":" + activityName))
	return hex.EncodeToString(sum[:16])
}
