package redis

import (
	"fmt"

	"github.com/mcoot/anubis-client/internal/storage"
)

// Key prefix for all client data
const keyPrefix = "anubis"

// identityKey returns the Redis key for one identity field of a profile
func identityKey(profile, field string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, profile, field)
}

func sessionIDKey(profile string) string {
	return identityKey(profile, storage.KeySessionID)
}

func nicknameKey(profile string) string {
	return identityKey(profile, storage.KeyNickname)
}
