package testutil

import (
	"time"
)

// Some time functions used for working with fixed times.

var KnownTime = time.Unix(1601378000, 0).UTC()

func KnownTimeNow() time.Time {
	return KnownTime
}

// KnownBlockTime is a block timestamp aligned to the start of a day, in unix seconds.
const KnownBlockTime uint64 = 1700006400
