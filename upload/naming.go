package upload

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Namer produces the stored name for an upload.
type Namer func(originalName string) string

// GenerateFilename returns image-<unix millis>-<random 0..1e9><ext>, with
// the extension of originalName lowercased.
func GenerateFilename(originalName string) string {
	return generateFilename(time.Now(), rand.IntN(1_000_000_001), originalName)
}

func generateFilename(now time.Time, n int, originalName string) string {
	return fmt.Sprintf("image-%d-%d%s", now.UnixMilli(), n, Extension(originalName))
}
