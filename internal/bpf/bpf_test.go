package bpf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bpfRetK = 0x06 // BPF_RET | BPF_K
)

func acceptAllProgram() []RawInstruction {
	return []RawInstruction{{Op: bpfRetK, K: 0xffffffff}}
}

func rejectAllProgram() []RawInstruction {
	return []RawInstruction{{Op: bpfRetK, K: 0}}
}

func TestCompileAcceptAllMatchesEveryFrame(t *testing.T) {
	f, err := Compile(acceptAllProgram())
	require.NoError(t, err)
	assert.True(t, f.Accept([]byte{1, 2, 3, 4}))
	assert.True(t, f.Accept([]byte{}))
}

func TestCompileRejectAllMatchesNoFrame(t *testing.T) {
	f, err := Compile(rejectAllProgram())
	require.NoError(t, err)
	assert.False(t, f.Accept([]byte{1, 2, 3, 4}))
}

func TestDecodeRawProgramRoundTrips(t *testing.T) {
	insns := []RawInstruction{
		{Op: bpfRetK, Jt: 0, Jf: 0, K: 0xffffffff},
	}
	payload := make([]byte, 2+8*len(insns))
	binary.LittleEndian.PutUint16(payload[0:2], uint16(len(insns)))
	for i, ri := range insns {
		b := payload[2+i*8 : 2+i*8+8]
		binary.LittleEndian.PutUint16(b[0:2], ri.Op)
		b[2] = ri.Jt
		b[3] = ri.Jf
		binary.LittleEndian.PutUint32(b[4:8], ri.K)
	}

	got, err := DecodeRawProgram(payload)
	require.NoError(t, err)
	assert.Equal(t, insns, got)
}

func TestDecodeRawProgramRejectsTruncatedBody(t *testing.T) {
	payload := []byte{2, 0, 1, 2, 3} // claims 2 instructions, body too short
	_, err := DecodeRawProgram(payload)
	assert.Error(t, err)
}
