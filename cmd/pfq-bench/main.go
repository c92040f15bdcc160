// Command pfq-bench drives an Engine with synthetic batches and reports
// throughput, standing in for a capture source (AF_PACKET, PF_RING, a
// replayed pcap) that would normally fill *gc.Batch values in production.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pfq-dev/go-pfq"
	"github.com/pfq-dev/go-pfq/internal/group"
	"github.com/pfq-dev/go-pfq/internal/logging"
	"github.com/pfq-dev/go-pfq/internal/netdev"
)

func main() {
	var (
		ifaceName = flag.String("iface", "lo", "fake device name to steer traffic through")
		frameLen  = flag.Int("frame-len", 128, "synthetic frame length in bytes")
		batchLen  = flag.Int("batch-len", 256, "descriptors per synthetic batch (a batch holds at most 64)")
		duration  = flag.Duration("duration", 5*time.Second, "how long to run before reporting and exiting")
		verbose   = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	devices := netdev.NewFake(map[string]int32{*ifaceName: 1})
	cfg := pfq.DefaultConfig()
	cfg.CaptBatchLen = *batchLen

	p, err := pfq.Open(cfg, devices, logger)
	if err != nil {
		logger.Error("failed to open pfq", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	sock := p.Control().OpenSocket(0)
	if err := p.Control().Enable(sock.ID(), 0); err != nil {
		logger.Error("failed to enable socket", "error", err)
		os.Exit(1)
	}
	gid, err := p.Control().GroupJoin(sock.ID(), pfq.AutoAssignGroupID, 1, group.Shared)
	if err != nil {
		logger.Error("failed to join group", "error", err)
		os.Exit(1)
	}
	if err := p.Control().GroupBind(gid, 1, 0); err != nil {
		logger.Error("failed to bind group to device", "error", err)
		os.Exit(1)
	}

	engine, err := p.Engine(0)
	if err != nil {
		logger.Error("failed to resolve engine", "error", err)
		os.Exit(1)
	}

	logger.Info("starting synthetic load", "iface", *ifaceName, "batch_len", *batchLen, "frame_len", *frameLen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stop := time.After(*duration)
	frame := make([]byte, *frameLen)
	rand.Read(frame)

	batch := p.NewBatch()
	start := time.Now()
	var batches, frames uint64

loop:
	for {
		select {
		case <-stop:
			break loop
		case <-sigCh:
			break loop
		default:
		}

		for batch.Size() < *batchLen {
			h, ok := batch.MakeBuff(frame)
			if !ok {
				break
			}
			d := batch.Descriptor(h)
			d.IfIndex = 1
			d.HwQueue = 0
		}
		admitted := batch.Size()
		engine.ProcessBatch(batch)
		batches++
		frames += uint64(admitted)
	}

	elapsed := time.Since(start)
	snap := p.Metrics().Snapshot()
	fmt.Printf("ran %s, submitted %d batches (%d frames)\n", elapsed, batches, frames)
	fmt.Printf("recv=%d drop=%d frwd=%d disc=%d fail=%d avg_batch=%.1f\n",
		snap.Recv, snap.Drop, snap.Frwd, snap.Disc, snap.Fail, snap.AvgBatchSize)
	fmt.Printf("recv_pps=%.0f drop_pps=%.0f\n", snap.RecvPPS, snap.DropPPS)
}
