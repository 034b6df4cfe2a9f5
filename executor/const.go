package executor

const (
	sep               = "-"
	prefixEntry       = "qe"
	prefixReprice     = "qr"
	prefixFallback    = "qf"
	prefixTakeProfit  = "qt"
	prefixStopLoss    = "qs"
	prefixClose       = "qc"
	recoverIdTemplate = "recover|%s|%d"
)

// journal events
const (
	JournalOpen  = "OPEN"
	JournalClose = "CLOSE"
)

// skip reasons
const (
	ReasonDuplicate   = "duplicate"
	ReasonBusy        = "busy"
	ReasonInPosition  = "in_position"
	ReasonNoFill      = "no_filled"
	ReasonPattern     = "pattern_not_allowed"
	ReasonInvalidSize = "invalid_size"
)
