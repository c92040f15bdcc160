package pfq

import "github.com/pfq-dev/go-pfq/internal/constants"

// Re-export the package-level tunables for callers that only need the
// top-level API surface.
const (
	MaxIfIndex         = constants.MaxIfIndex
	MaxHwQueue         = constants.MaxHwQueue
	MaxGroups          = constants.MaxGroups
	MaxSockets         = constants.MaxSockets
	MaxClasses         = constants.MaxClasses
	GroupCounterSlots  = constants.GroupCounterSlots
	DefaultCaptBatchLen = constants.DefaultCaptBatchLen
	DefaultXmitBatchLen = constants.DefaultXmitBatchLen
	DefaultRxSlots      = constants.DefaultRxSlots
	DefaultTxSlots      = constants.DefaultTxSlots
	DefaultCaplen       = constants.DefaultCaplen
	AutoAssignGroupID   = constants.AutoAssignGroupID
)

// Config is the process-wide tunable set (spec §6 "Configuration"):
// per-CPU batch sizing, pool depth, and the CPU sets workers pin to.
type Config struct {
	// CaptBatchLen bounds how many descriptors a per-CPU GC batch holds
	// before the engine is invoked, 1..MaxCaptBatchLen.
	CaptBatchLen int
	// XmitBatchLen bounds a single Tx worker drain, 1..MaxXmitBatchLen.
	XmitBatchLen int
	// SkbPoolSize is the recycle-pool depth setting. The frame pool in
	// internal/gc is an unbounded sync.Pool and does not read it.
	SkbPoolSize int
	// RxSlots/TxSlots and Caplen are recorded here only: Control.OpenSocket
	// does not read them and gives every new socket the internal/constants
	// defaults for queue slots and capture length.
	RxSlots, TxSlots int
	Caplen           int
	// RxCPUs gives one engine per entry; each entry becomes that engine's
	// CPU id (its per-CPU stats slot). Open does not pin any thread.
	RxCPUs []int
	// TxCPUs lists the CPUs the async Tx worker pool pins to.
	TxCPUs []int
}

// DefaultConfig returns the tunables spec §6 and internal/constants
// document as defaults.
func DefaultConfig() Config {
	return Config{
		CaptBatchLen: constants.DefaultCaptBatchLen,
		XmitBatchLen: constants.DefaultXmitBatchLen,
		SkbPoolSize:  constants.DefaultSkbPoolSize,
		RxSlots:      constants.DefaultRxSlots,
		TxSlots:      constants.DefaultTxSlots,
		Caplen:       constants.DefaultCaplen,
	}
}
