// Command netcode-server runs a standalone netcode.Server bound to a UDP
// socket, with structured logging and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-envparse"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/northlane-net/netcode/internal/config"
	"github.com/northlane-net/netcode/internal/logging"
	"github.com/northlane-net/netcode/internal/netsrv"
	"github.com/northlane-net/netcode/pkg/netcode"
)

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\nnote: if env_file is provided, config from the environment is ignored\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var e []string
	if pflag.NArg() == 0 {
		e = os.Environ()
	} else {
		if x, err := readEnv(pflag.Arg(0)); err == nil {
			e = x
		} else {
			fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
			os.Exit(1)
		}
	}

	var c config.Config
	if err := c.UnmarshalEnv(e, false); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse config: %v\n", err)
		os.Exit(1)
	}

	log, reopen, err := logging.Configure(&c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: configure logging: %v\n", err)
		os.Exit(1)
	}
	zerolog.DefaultContextLogger = &log

	addrs, err := c.ServerAddresses()
	if err != nil {
		log.Fatal().Err(err).Msg("resolve server addresses")
	}

	srv, err := netcode.NewServer(c.MaxClients, c.ProtocolID, addrs[0], netcode.Key(c.ConnectKey))
	if err != nil {
		log.Fatal().Err(err).Msg("initialize netcode server")
	}

	t := netsrv.New(srv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hch := make(chan os.Signal, 1)
	signal.Notify(hch, syscall.SIGHUP)
	go func() {
		for range hch {
			log.Info().Msg("got SIGHUP, reopening log file")
			reopen()
		}
	}()

	if c.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			t.WritePrometheus(w)
		})
		go func() {
			log.Info().Str("addr", c.MetricsAddr).Msg("serving metrics")
			if err := http.ListenAndServe(c.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server exited")
			}
		}()
	}

	go t.RunTicks(ctx, c.TickInterval)
	go func() {
		<-ctx.Done()
		t.Close()
	}()

	go func() {
		for p := range t.Payloads {
			log.Debug().Stringer("addr", p.Addr).Int("bytes", len(p.Data)).Msg("payload received")
		}
	}()

	log.Info().Stringer("addr", c.Addr).Int("max_clients", c.MaxClients).Msg("starting netcode-server")
	if err := t.ListenAndServe(c.Addr); err != nil && !errors.Is(err, netsrv.ErrTransportClosed) {
		log.Fatal().Err(err).Msg("run server")
	}
}

func readEnv(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	var r []string
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}
