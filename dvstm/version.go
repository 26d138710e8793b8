package dvstm

import (
	"fmt"

	"github.com/kolkov/dvstm/internal/stm/accessset"
)

// Version is the current release of the dvstm module.
const Version = "0.1.0"

// Limits describes the fixed capacity a Region enforces regardless of
// its own size or alignment.
type Limits struct {
	// MaxReadWriteTx is the largest number of read/write transactions
	// that may be outstanding in a single epoch.
	MaxReadWriteTx int
}

// BuildInfo identifies the runtime a Region was built by: its version,
// the isolation algorithm it implements, and the capacity limits that
// algorithm's access-set encoding fixes.
type BuildInfo struct {
	Version   string
	Algorithm string
	Limits    Limits
}

// String renders b as a single line suitable for a startup log or a
// support bundle.
func (b BuildInfo) String() string {
	return fmt.Sprintf("dvstm %s (%s, max %d rw tx/epoch)", b.Version, b.Algorithm, b.Limits.MaxReadWriteTx)
}

// GetInfo reports the build this binary was linked against.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Algorithm: "dual-versioned snapshot-isolation STM",
		Limits:    Limits{MaxReadWriteTx: int(accessset.MaxRWTx)},
	}
}
