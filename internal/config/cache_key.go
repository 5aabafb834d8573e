package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding a user's active login JTI.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// UserActiveQuizKey returns the cache key pointing at a user's active quiz session.
func (r *CacheKeyStruct) UserActiveQuizKey(userID int) string {
	return fmt.Sprintf("user:%d:active_quiz", userID)
}

var CacheKey = NewCacheKeyStruct()
