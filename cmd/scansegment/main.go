// Command scansegment is the out-of-scope collaborator spec.md contracts
// but doesn't specify the internals of: a thin CLI over the scansegment
// library, either reading a file of raw telegram bytes or listening/
// dialing live, printing decoded segments as they're produced.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/scansegment"
	"github.com/banshee-data/scansegment/compact"
	"github.com/banshee-data/scansegment/msgpack"
	"github.com/banshee-data/scansegment/receiver"
	"github.com/banshee-data/scansegment/transport"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  scansegment read {msgpack|compact} -i <file>
  scansegment receive {msgpack|compact} [--ip A] [--port P] [--protocol udp|tcp]`)
}

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "read":
		err = runRead(os.Args[2], os.Args[3:])
	case "receive":
		err = runReceive(os.Args[2], os.Args[3:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Printf("scansegment: %v", err)
		os.Exit(1)
	}
}

func newExtractor(encoding string, stats scansegment.Stats) (transport.Extractor, func([]byte) (*scansegment.Segment, error), error) {
	switch encoding {
	case "compact":
		return &compact.Extractor{Stats: stats}, compact.Decode, nil
	case "msgpack":
		return &msgpack.Extractor{Stats: stats}, msgpack.Decode, nil
	default:
		return nil, nil, fmt.Errorf("unknown encoding %q (want msgpack or compact)", encoding)
	}
}

func runRead(encoding string, args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	inFile := fs.String("i", "", "input file of raw telegram bytes")
	fs.Parse(args)

	if *inFile == "" {
		return fmt.Errorf("-i <file> is required")
	}
	data, err := os.ReadFile(*inFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", *inFile, err)
	}

	extractor, decode, err := newExtractor(encoding, nil)
	if err != nil {
		return err
	}
	extractor.Feed(data)

	count := 0
	for {
		tele, ok := extractor.Next()
		if !ok {
			break
		}
		seg, err := decode(tele)
		if err != nil {
			return fmt.Errorf("decode telegram %d: %w", count, err)
		}
		printSegment(count, seg)
		count++
	}
	if count == 0 {
		return fmt.Errorf("no complete telegrams found in %s", *inFile)
	}
	return nil
}

func runReceive(encoding string, args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	ip := fs.String("ip", "localhost", "host to listen on (udp) or dial (tcp)")
	port := fs.Int("port", 2115, "port to listen on or dial")
	protocol := fs.String("protocol", "udp", "udp or tcp")
	rcvBuf := fs.Int("rcvbuf", 2*1024*1024, "OS receive buffer size in bytes (udp only)")
	logInterval := fs.Int("log-interval", 2, "statistics logging interval in seconds")
	fs.Parse(args)

	stats := &scansegment.Counters{}
	extractor, decode, err := newExtractor(encoding, stats)
	if err != nil {
		return err
	}

	var tport receiver.Transport
	addr := fmt.Sprintf("%s:%d", *ip, *port)
	switch *protocol {
	case "udp":
		tport, err = transport.ListenDatagram(transport.RealDatagramSocketFactory{}, "udp", addr, 64*1024, *rcvBuf)
	case "tcp":
		tport, err = transport.DialStreamTCP(addr, extractor, 64*1024)
	default:
		return fmt.Errorf("unknown protocol %q (want udp or tcp)", *protocol)
	}
	if err != nil {
		return fmt.Errorf("connect %s %s: %w", *protocol, addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rcv := receiver.New(receiver.Config{Transport: tport, Decoder: decode, Stats: stats, OnError: receiver.SkipAndLog})
	defer rcv.CloseConnection()

	log.Printf("scansegment: receiving %s over %s from %s", encoding, *protocol, addr)

	ticker := time.NewTicker(time.Duration(*logInterval) * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := stats.Snapshot()
				log.Printf("scansegment: stats telegrams=%d bytes=%d decode_errors=%d resyncs=%d",
					snap.Telegrams, snap.Bytes, snap.DecodeErrors, snap.Resyncs)
			}
		}
	}()

	count := 0
	for ctx.Err() == nil {
		segs, _, _, err := rcv.ReceiveSegments(ctx, 1)
		if err != nil {
			return fmt.Errorf("receive segment: %w", err)
		}
		for _, seg := range segs {
			printSegment(count, seg)
			count++
		}
	}

	snap := stats.Snapshot()
	log.Printf("scansegment: stopped after %d telegrams (%d bytes, %d decode errors)", snap.Telegrams, snap.Bytes, snap.DecodeErrors)
	return nil
}

func printSegment(index int, seg *scansegment.Segment) {
	fmt.Printf("[%d] telegram_counter=%d frame=%d segment=%d modules=%d scans=%d\n",
		index, seg.TelegramCounter, seg.FrameNumber, seg.SegmentCounter, len(seg.Modules), len(seg.Scans))
}
