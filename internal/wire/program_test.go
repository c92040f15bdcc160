package wire

import (
	"testing"

	"github.com/pfq-dev/go-pfq/internal/lang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeProgramRoundTrips(t *testing.T) {
	descrs := []lang.Descr{
		{Kind: lang.KindPredicate, Symbol: "udp", LIndex: -1, RIndex: -1, PIndex: -1},
		{
			Kind: lang.KindHighOrder, Symbol: "tee", Arg: []byte{1, 2, 3, 4},
			PIndex: 0, LIndex: 2, RIndex: -1,
		},
		{Kind: lang.KindMonadic, Symbol: "kernel", LIndex: -1, RIndex: -1, PIndex: -1},
	}

	buf := EncodeProgram(descrs, 1)
	got, entry, err := DecodeProgram(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, entry)
	assert.Equal(t, descrs, got)
}

func TestDecodeProgramRejectsBadMagic(t *testing.T) {
	_, _, err := DecodeProgram([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestDecodeProgramRejectsTruncated(t *testing.T) {
	buf := EncodeProgram([]lang.Descr{{Kind: lang.KindMonadic, Symbol: "kernel"}}, 0)
	_, _, err := DecodeProgram(buf[:len(buf)-3])
	assert.Error(t, err)
}
