// Package guard flags the process as running under test before any app package reads its environment.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ASSETTRACK_TEST_MODE") == "" {
			_ = os.Setenv("ASSETTRACK_TEST_MODE", "1")
		}
	})
}
