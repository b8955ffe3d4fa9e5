package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID builds a globally unique schedule id: type + creation instant +
// random suffix. The prefix keeps ids greppable in logs and snapshots.
func NewID(t Type, now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%d-%s", t, now.UnixMilli(), suffix)
}
