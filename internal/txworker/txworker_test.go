package txworker

import (
	"sync"
	"testing"
	"time"

	"github.com/pfq-dev/go-pfq/internal/squeue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEndpoint struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeEndpoint) Send(queue int, frame []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), frame...))
	return len(frame), nil
}
func (f *fakeEndpoint) Name() string { return "fake" }
func (f *fakeEndpoint) Close() error { return nil }

func (f *fakeEndpoint) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestWorkerDrainsQueueToEndpoint(t *testing.T) {
	q, err := squeue.NewTxQueue(4096)
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 5; i++ {
		require.True(t, q.Append(squeue.TxSlotHeader{IfIndex: 1}, []byte("frame")))
	}

	ep := &fakeEndpoint{}
	w := New(0, -1, []Target{{Queue: q, IfIndex: 1, HwQueue: 0}}, ep, 32, nil, nil)
	go w.Run()

	require.Eventually(t, func() bool { return ep.count() == 5 }, time.Second, time.Millisecond)
	w.Stop()
}
