// Package config loads netcode-server's configuration from the environment,
// following the env-tag reflection scheme used throughout the r2northstar
// tooling this project grew out of.
package config

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HexKey is a fixed 32-byte key, configured as a 64-character hex string.
type HexKey [32]byte

func (k HexKey) String() string { return hex.EncodeToString(k[:]) }

func parseHexKey(s string) (HexKey, error) {
	var k HexKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("must be %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Config contains the configuration for netcode-server. The env struct tag
// contains the environment variable name and the default value if missing,
// or empty (if not ?=).
type Config struct {
	// The address to bind the UDP socket to.
	Addr netip.AddrPort `env:"NETCODE_ADDR=:40000"`

	// The addresses clients' connect tokens must whitelist this server under.
	// Comma-separated. If empty, Addr is used. netcode-server checks tokens
	// against the first of these addresses only.
	PublicAddrs []string `env:"NETCODE_PUBLIC_ADDRS"`

	// The protocol id connect tokens and packets must carry.
	ProtocolID uint64 `env:"NETCODE_PROTOCOL_ID=1"`

	// The maximum number of simultaneously connected clients.
	MaxClients int `env:"NETCODE_MAX_CLIENTS=64"`

	// The private key connect tokens are sealed under, as 64 hex characters.
	ConnectKey HexKey `env:"NETCODE_CONNECT_KEY"`

	// How often to run the timeout/pending-connection reaper.
	TickInterval time.Duration `env:"NETCODE_TICK_INTERVAL=100ms"`

	// The minimum log level (e.g., trace, debug, info, warn, error, fatal).
	LogLevel zerolog.Level `env:"NETCODE_LOG_LEVEL=debug"`

	// Whether to log to stdout.
	LogStdout bool `env:"NETCODE_LOG_STDOUT=true"`

	// Whether to use pretty (console) logs.
	LogStdoutPretty bool `env:"NETCODE_LOG_STDOUT_PRETTY=true"`

	// The log file to output to, if provided. Reopened on SIGHUP.
	LogFile string `env:"NETCODE_LOG_FILE"`

	// The address to serve Prometheus metrics on. If empty, metrics are not
	// served.
	MetricsAddr string `env:"NETCODE_METRICS_ADDR"`
}

// UnmarshalEnv unmarshals an array of environment variables into c, setting
// default values as appropriate. If incremental is true, default values will
// not be set for missing env vars, but only for empty ones.
func (c *Config) UnmarshalEnv(es []string, incremental bool) error {
	em := map[string]string{}
	for _, e := range es {
		if strings.HasPrefix(e, "NETCODE_") {
			if k, v, ok := strings.Cut(e, "="); ok {
				em[k] = v
			}
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		env, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, val, _ := strings.Cut(env, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}
		if v, exists := em[key]; exists {
			if unsettable || v != "" {
				val = v
			}
			delete(em, key)
		} else if incremental {
			continue
		}

		switch cvf := cv.FieldByName(ctf.Name); cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case int, int8, int16, int32, int64:
			if val == "" {
				cvf.SetInt(0)
			} else if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				cvf.SetInt(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case uint, uint8, uint16, uint32, uint64:
			if val == "" {
				cvf.SetUint(0)
			} else if v, err := strconv.ParseUint(val, 10, 64); err == nil {
				cvf.SetUint(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case bool:
			if val == "" {
				cvf.SetBool(false)
			} else if v, err := strconv.ParseBool(val); err == nil {
				cvf.SetBool(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case []string:
			if val == "" {
				cvf.Set(reflect.ValueOf([]string{}))
			} else {
				cvf.Set(reflect.ValueOf(strings.Split(val, ",")))
			}
		case zerolog.Level:
			if v, err := zerolog.ParseLevel(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case time.Duration:
			if v, err := time.ParseDuration(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case netip.AddrPort:
			if val == "" {
				cvf.Set(reflect.ValueOf(netip.AddrPort{}))
			} else if v, err := netip.ParseAddrPort(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else if v, err1 := netip.ParseAddrPort("[::]" + val); len(val) != 0 && val[0] == ':' && err1 == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case HexKey:
			if val == "" {
				cvf.Set(reflect.ValueOf(HexKey{}))
			} else if v, err := parseHexKey(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		default:
			return fmt.Errorf("unhandled type %T (%s)", cvf.Interface(), env)
		}
	}
	for key, val := range em {
		if val != "" {
			return fmt.Errorf("unknown environment variable %q", key)
		}
	}
	return nil
}

// ServerAddresses resolves the whitelist of addresses connect tokens for this
// server must carry, falling back to Addr if PublicAddrs is empty.
func (c *Config) ServerAddresses() ([]netip.AddrPort, error) {
	if len(c.PublicAddrs) == 0 {
		return []netip.AddrPort{c.Addr}, nil
	}
	addrs := make([]netip.AddrPort, 0, len(c.PublicAddrs))
	for _, a := range c.PublicAddrs {
		ap, err := netip.ParseAddrPort(a)
		if err != nil {
			return nil, fmt.Errorf("parse public addr %q: %w", a, err)
		}
		addrs = append(addrs, ap)
	}
	return addrs, nil
}
