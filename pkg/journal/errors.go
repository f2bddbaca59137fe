package journal

import "errors"

var errDegraded = errors.New("journal: store degraded")
