// Command example runs a peerlink server and client in one process: the
// client pings, asks the server to add two numbers and streams a text in
// chunks that the server reassembles in order.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Zereker/peerlink"
	"github.com/Zereker/peerlink/config"
	"github.com/Zereker/peerlink/logger"
	"github.com/Zereker/peerlink/sequence"
)

type Ping struct {
	peerlink.NotificationBase
	From string `json:"from"`
}

type Sum struct {
	peerlink.ReplyBase
	Value int `json:"value"`
}

type Add struct {
	peerlink.QueryBase[Sum]
	A int `json:"a"`
	B int `json:"b"`
}

type Chunk struct {
	peerlink.NotificationBase
	Seq  uint64 `json:"seq"`
	Data string `json:"data"`
}

type Assembled struct {
	peerlink.ReplyBase
	Text string `json:"text"`
}

type Collect struct {
	peerlink.QueryBase[Assembled]
}

func main() {
	path := flag.String("config", "peerlink.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	opts = append(opts, peerlink.LoggerOption(log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := peerlink.Listen(cfg.Listen, opts...)
	if err != nil {
		return err
	}
	if err = registerHandlers(server.Router(), log); err != nil {
		return err
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- server.Serve(serveCtx) }()

	log.Info("server start", "addr", server.Addr().String())

	if err = exchange(ctx, server.Addr().String(), opts, log); err != nil {
		log.Error("exchange failed", "error", err)
	}

	cancel()
	if err = <-served; err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func registerHandlers(r *peerlink.Router, log *slog.Logger) error {
	text := sequence.New[string]()
	var b strings.Builder

	if err := peerlink.HandleContext(r, func(ctx *peerlink.Context, p Ping) error {
		log.Info("ping", "from", p.From, "conn", ctx.Conn.ID())
		return nil
	}); err != nil {
		return err
	}

	if err := peerlink.Answer(r, func(q Add) (Sum, error) {
		return Sum{Value: q.A + q.B}, nil
	}); err != nil {
		return err
	}

	if err := peerlink.Handle(r, func(c Chunk) error {
		text.Process(c.Data, c.Seq, func(s string) { b.WriteString(s) })
		return nil
	}); err != nil {
		return err
	}

	return peerlink.Answer(r, func(Collect) (Assembled, error) {
		if n := text.Pending(); n > 0 {
			return Assembled{}, fmt.Errorf("%d chunks still missing", n)
		}
		return Assembled{Text: b.String()}, nil
	})
}

func exchange(ctx context.Context, addr string, opts []peerlink.Option, log *slog.Logger) error {
	client, err := peerlink.Dial(ctx, addr, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	if err = client.Notify(ctx, Ping{From: "example"}); err != nil {
		return err
	}

	sum, err := peerlink.Ask[Sum](ctx, client, Add{A: 2, B: 3}, peerlink.WithTimeout(5*time.Second))
	if err != nil {
		return err
	}
	log.Info("add 2 3", "sum", sum.Value)

	words := strings.Fields("frames arrive in order over one connection but chunks need not")
	for i := len(words) - 1; i >= 0; i-- {
		if err = client.Notify(ctx, Chunk{Seq: uint64(i), Data: words[i] + " "}); err != nil {
			return err
		}
	}

	out, err := peerlink.Ask[Assembled](ctx, client, Collect{})
	if err != nil {
		return err
	}
	log.Info("reassembled", "text", strings.TrimSpace(out.Text))
	return nil
}
