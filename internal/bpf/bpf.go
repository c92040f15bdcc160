// Package bpf adapts golang.org/x/net/bpf's classic-BPF interpreter to the
// group.Filter interface (spec §4.3's optional per-group filter, treated
// as a black-box predicate per spec §9's design note).
package bpf

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/net/bpf"
)

// RawInstruction is the wire format of one classic-BPF instruction, as
// delivered by GROUP_FPROG (spec §6): opcode, jt/jf offsets, and the
// immediate/operand.
type RawInstruction struct {
	Op uint16
	Jt uint8
	Jf uint8
	K  uint32
}

// Filter wraps a compiled classic-BPF program. It implements
// internal/group.Filter.
type Filter struct {
	vm *bpf.VM
}

// Compile assembles raw instructions (as received over the control
// surface) into a runnable filter.
func Compile(insns []RawInstruction) (*Filter, error) {
	raw := make([]bpf.RawInstruction, len(insns))
	for i, ri := range insns {
		raw[i] = bpf.RawInstruction{Op: ri.Op, Jt: ri.Jt, Jf: ri.Jf, K: ri.K}
	}
	prog, err := bpf.Disassemble(raw)
	if err != nil {
		return nil, fmt.Errorf("bpf: disassemble: %w", err)
	}
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, fmt.Errorf("bpf: assemble: %w", err)
	}
	return &Filter{vm: vm}, nil
}

// Accept runs the classic-BPF program against frame; a non-zero return
// length (clamped to len(frame)) means the packet passes.
func (f *Filter) Accept(frame []byte) bool {
	n, err := f.vm.Run(frame)
	return err == nil && n > 0
}

// DecodeRawProgram decodes the GROUP_FPROG wire payload: a u16 instruction
// count followed by that many 8-byte classic-BPF instructions.
func DecodeRawProgram(payload []byte) ([]RawInstruction, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("bpf: truncated program header")
	}
	count := int(binary.LittleEndian.Uint16(payload[0:2]))
	body := payload[2:]
	if len(body) < count*8 {
		return nil, fmt.Errorf("bpf: truncated instruction body")
	}
	out := make([]RawInstruction, count)
	for i := 0; i < count; i++ {
		b := body[i*8 : i*8+8]
		out[i] = RawInstruction{
			Op: binary.LittleEndian.Uint16(b[0:2]),
			Jt: b[2],
			Jf: b[3],
			K:  binary.LittleEndian.Uint32(b[4:8]),
		}
	}
	return out, nil
}
