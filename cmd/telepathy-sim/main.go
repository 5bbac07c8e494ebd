// Command telepathy-sim is a stand-in telemetry producer for exercising the
// client without a robot. Each connecting client receives a fixed greeting;
// numbers typed on stdin are then broadcast as TestKey until a negative
// number or EOF.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	telenet "github.com/thorcore/telepathy/internal/net"
	"github.com/thorcore/telepathy/internal/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fset := flag.NewFlagSet("telepathy-sim", flag.ExitOnError)
	listen := fset.String("listen", ":6387", "listen address")
	wave := fset.Duration("wave", 0, "also broadcast a sine wave as Wave at this interval (0 = off)")
	_ = fset.Parse(os.Args[1:])

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	srv, err := telenet.NewServer(*listen, log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer srv.Shutdown()
	go srv.AcceptLoop()
	log.Info("waiting for telepathy clients", zap.Stringer("addr", srv.Addr()))

	go func() {
		for p := range srv.NewPeers() {
			if err := greet(p); err != nil {
				log.Warn("greeting failed", zap.Uint64("peer", p.ID), zap.Error(err))
				p.Close()
			}
		}
	}()

	if *wave > 0 {
		go func() {
			start := time.Now()
			ticker := time.NewTicker(*wave)
			defer ticker.Stop()
			for range ticker.C {
				srv.Broadcast("Wave", wire.DoubleValue(math.Sin(time.Since(start).Seconds())))
			}
		}()
	}

	in := bufio.NewScanner(os.Stdin)
	in.Split(bufio.ScanWords)
	for in.Scan() {
		v, err := strconv.ParseFloat(in.Text(), 64)
		if err != nil {
			log.Warn("not a number", zap.String("input", in.Text()))
			continue
		}
		if v < 0 {
			break
		}
		n := srv.Broadcast("TestKey", wire.DoubleValue(v))
		log.Info("sent", zap.Float64("TestKey", v), zap.Int("peers", n))
	}
	return in.Err()
}

func greet(p *telenet.Peer) error {
	msgs := []struct {
		key string
		v   wire.Value
	}{
		{"TestKey", wire.DoubleValue(12.7896)},
		{"Another key", wire.StringValue("Hello, World!")},
		{"Time", wire.StringValue(time.Now().Format(time.UnixDate))},
		{"Another key", wire.StringValue("Now I'm different")},
	}
	for _, m := range msgs {
		if err := p.Send(m.key, m.v); err != nil {
			return err
		}
	}
	return nil
}
