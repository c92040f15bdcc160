// Package wire encodes and decodes the byte formats the control plane
// exchanges with external tools: a compiled pfq-lang descriptor array
// saved to or loaded from disk by cmd/pfqctl.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/pfq-dev/go-pfq/internal/lang"
)

// programMagic tags an encoded program file so a loader can reject a
// stray file before trying to interpret it as descriptors.
const programMagic = uint32(0x70667130) // "pfq0"

// EncodeProgram serializes descrs plus the entry point into a flat byte
// buffer: a u32 magic, u32 entry point, u32 count, then each descriptor
// as kind(u8) + symbol-len(u16) + symbol + arg-len(u16) + arg +
// pIndex/lIndex/rIndex(i32 each) + combo(u8).
func EncodeProgram(descrs []lang.Descr, entryPoint int) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], programMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(entryPoint)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(descrs)))

	for _, d := range descrs {
		buf = append(buf, byte(d.Kind))

		symLen := make([]byte, 2)
		binary.LittleEndian.PutUint16(symLen, uint16(len(d.Symbol)))
		buf = append(buf, symLen...)
		buf = append(buf, d.Symbol...)

		argLen := make([]byte, 2)
		binary.LittleEndian.PutUint16(argLen, uint16(len(d.Arg)))
		buf = append(buf, argLen...)
		buf = append(buf, d.Arg...)

		var idx [12]byte
		binary.LittleEndian.PutUint32(idx[0:4], uint32(int32(d.PIndex)))
		binary.LittleEndian.PutUint32(idx[4:8], uint32(int32(d.LIndex)))
		binary.LittleEndian.PutUint32(idx[8:12], uint32(int32(d.RIndex)))
		buf = append(buf, idx[:]...)
		buf = append(buf, byte(d.Combo))
	}
	return buf
}

// DecodeProgram is EncodeProgram's inverse.
func DecodeProgram(b []byte) (descrs []lang.Descr, entryPoint int, err error) {
	if len(b) < 12 {
		return nil, 0, fmt.Errorf("wire: truncated program header")
	}
	if binary.LittleEndian.Uint32(b[0:4]) != programMagic {
		return nil, 0, fmt.Errorf("wire: bad magic")
	}
	entryPoint = int(int32(binary.LittleEndian.Uint32(b[4:8])))
	count := int(binary.LittleEndian.Uint32(b[8:12]))
	off := 12

	out := make([]lang.Descr, 0, count)
	for i := 0; i < count; i++ {
		if off+1+2 > len(b) {
			return nil, 0, fmt.Errorf("wire: truncated descriptor %d", i)
		}
		kind := lang.Kind(b[off])
		off++
		symLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
		off += 2
		if off+symLen > len(b) {
			return nil, 0, fmt.Errorf("wire: truncated symbol at descriptor %d", i)
		}
		symbol := string(b[off : off+symLen])
		off += symLen

		if off+2 > len(b) {
			return nil, 0, fmt.Errorf("wire: truncated arg header at descriptor %d", i)
		}
		argLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
		off += 2
		if off+argLen > len(b) {
			return nil, 0, fmt.Errorf("wire: truncated arg at descriptor %d", i)
		}
		var arg []byte
		if argLen > 0 {
			arg = append([]byte(nil), b[off:off+argLen]...)
		}
		off += argLen

		if off+13 > len(b) {
			return nil, 0, fmt.Errorf("wire: truncated indices at descriptor %d", i)
		}
		pIndex := int(int32(binary.LittleEndian.Uint32(b[off : off+4])))
		lIndex := int(int32(binary.LittleEndian.Uint32(b[off+4 : off+8])))
		rIndex := int(int32(binary.LittleEndian.Uint32(b[off+8 : off+12])))
		combo := lang.ComboKind(b[off+12])
		off += 13

		out = append(out, lang.Descr{
			Kind:   kind,
			Symbol: symbol,
			Arg:    arg,
			PIndex: pIndex,
			LIndex: lIndex,
			RIndex: rIndex,
			Combo:  combo,
		})
	}
	return out, entryPoint, nil
}
