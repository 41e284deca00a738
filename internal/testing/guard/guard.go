// Package guard forces test mode and fills the secrets LoadConfig requires.
// Blank-import it from tests that touch runtime configuration.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

var defaults = map[string]string{
	"ODYSSEY_TEST_MODE":        "1",
	"SESSION_SECRET":           "test-session-secret",
	"CSRF_SECRET":              "test-csrf-secret",
	"JWT_SECRET":               "test-jwt-secret",
	"PERMISSION_CACHE_BACKEND": "memory",
}

func init() {
	once.Do(func() {
		for key, value := range defaults {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}
