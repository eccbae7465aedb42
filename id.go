package streampass

import (
	"github.com/xraph/streampass/id"
	"github.com/xraph/streampass/plugin"
)

// ReceiptID identifies one committed engine transaction.
type ReceiptID = id.ReceiptID

// EventID identifies one plugin lifecycle event.
type EventID = id.EventID

// ReceiptFromContext returns the receipt of the transaction whose commit
// is being reported to a plugin hook.
var ReceiptFromContext = plugin.ReceiptFromContext
