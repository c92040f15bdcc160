// Package constants holds the tunables and fixed capacities shared across
// the engine, group table, device map, and shared-queue packages.
package constants

import "time"

// Table capacities (spec §3's device->group map and group table).
const (
	// MaxIfIndex bounds the device->group map's first dimension.
	MaxIfIndex = 256
	// MaxHwQueue bounds the device->group map's second dimension.
	MaxHwQueue = 64
	// MaxGroups is the number of group slots (gid 0..MaxGroups-1).
	MaxGroups = 64
	// MaxSockets is the number of socket id slots (sid 0..MaxSockets-1).
	MaxSockets = 64
	// MaxClasses is the number of traffic classes per group.
	MaxClasses = 64
	// MaxSockMask bounds the sum of weights in a steering set and the
	// valid range for SET_WEIGHT.
	MaxSockMask = 1 << 16
	// GroupCounterSlots is the number of user-addressable per-group counters.
	GroupCounterSlots = 64
	// VlanBitmapSlots is the number of VID bitmap bits (0..4094, plus slack).
	VlanBitmapSlots = 4096
)

// Batch and queue tunables (spec §6 "Configuration").
const (
	// DefaultCaptBatchLen is the default per-CPU GC batch capacity.
	DefaultCaptBatchLen = 64
	// MaxCaptBatchLen is the maximum allowed capt_batch_len.
	MaxCaptBatchLen = 64
	// DefaultXmitBatchLen is the default Tx flush granularity.
	DefaultXmitBatchLen = 32
	// MaxXmitBatchLen is the maximum allowed xmit_batch_len.
	MaxXmitBatchLen = 256
	// DefaultSkbPoolSize is the default recycle-pool depth per CPU.
	DefaultSkbPoolSize = 1024
	// MaxSkbPoolSize bounds skb_pool_size.
	MaxSkbPoolSize = 1 << 20
	// DefaultRxSlots/DefaultTxSlots size a socket's shared-queue arenas.
	DefaultRxSlots = 4096
	DefaultTxSlots = 4096
	// DefaultCaplen is the default per-socket capture length.
	DefaultCaplen = 1514
)

// Timing constants, in the spirit of the teacher's device-lifecycle
// delays. No code in this module reads them.
const (
	// BatchTimerInterval is a flush period for partial batches. The module
	// has no batch timer: a batch is processed only when its owner calls
	// Engine.ProcessBatch.
	BatchTimerInterval = 100 * time.Millisecond
	// ShmemMapRetryDelay is a backoff for shared-queue mmap retries.
	// Control.Enable makes a single mmap attempt and does not retry.
	ShmemMapRetryDelay = 5 * time.Millisecond
)

// AutoAssignGroupID requests the next free gid from JoinGroup.
const AutoAssignGroupID = -1
