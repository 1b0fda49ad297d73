package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionAnswersKey is the hash of question id → {answer, marked, revision}
// for one session.
func (r *CacheKeyStruct) SessionAnswersKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:answers", sessionID)
}

// SessionStatusKey caches the session status so saves can be rejected
// without a database round trip once it is completed.
func (r *CacheKeyStruct) SessionStatusKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:status", sessionID)
}

var CacheKey = NewCacheKeyStruct()
