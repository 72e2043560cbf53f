package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	_ "github.com/assettrack/assettrack/internal/testing/guard"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		if os.Getenv("JWT_SECRET") == "" {
			_ = os.Setenv("JWT_SECRET", "test-secret")
		}
		// Tests never reach a shared cache unless they start miniredis themselves.
		_ = os.Setenv("REDIS_ADDR", "")
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
