// Package guard switches binaries into test mode when imported by a test. Test mode
// skips connecting to PostgreSQL and Redis during command wiring.
package guard

import (
	"os"
	"sync"
)

// Env names the variable app.InTestMode reads.
const Env = "STOCKLEDGER_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
