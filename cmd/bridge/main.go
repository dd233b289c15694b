// Command bridge runs the bridge calls from a shell, or serves them over HTTP.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/Egham-7/substreams-bridge/internal/bridge"
	"github.com/Egham-7/substreams-bridge/internal/config"
	"github.com/Egham-7/substreams-bridge/pkg/server"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	var configPath string
	var logLevel string
	var asBytes bool

	flagSet := pflag.NewFlagSet("bridge", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file (default: $"+config.ConfigEnvVar+")")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level")
	flagSet.BoolVar(&asBytes, "bytes", false, "substreams_call: print raw payloads as hex, one per line")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.SetInterspersed(true)

	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("missing command")
	}

	config.LoadEnvFiles([]string{".env.local", ".env"})
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	command, rest := args[0], args[1:]
	if command == "serve" {
		if len(rest) != 0 {
			return fmt.Errorf("usage: bridge serve")
		}
		return server.New(cfg).Run()
	}

	config.SetupLogLevel(cfg)
	b, err := bridge.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	ctx := context.Background()
	switch command {
	case "rpc_call":
		if len(rest) != 4 {
			return fmt.Errorf("usage: bridge rpc_call <url> <method> <params> <id>")
		}
		id, err := strconv.ParseInt(rest[3], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid id '%s': %w", rest[3], err)
		}
		out, err := b.RPCCallContext(ctx, rest[0], rest[1], rest[2], int32(id))
		if err != nil {
			return err
		}
		fmt.Println(out)
	case "api_call":
		if len(rest) < 1 || len(rest) > 2 {
			return fmt.Errorf("usage: bridge api_call <url> [headers-json]")
		}
		var headers *string
		if len(rest) == 2 {
			headers = &rest[1]
		}
		out, err := b.APICallContext(ctx, rest[0], headers)
		if err != nil {
			return err
		}
		fmt.Println(out)
	case "substreams_call":
		if len(rest) < 3 || len(rest) > 4 {
			return fmt.Errorf("usage: bridge substreams_call <endpoint> <spkg> <module> [range]")
		}
		var blockRange *string
		if len(rest) == 4 {
			blockRange = &rest[3]
		}
		if asBytes {
			payloads, err := b.StreamCallBytesContext(ctx, rest[0], rest[1], rest[2], blockRange)
			if err != nil {
				return err
			}
			for _, p := range payloads {
				fmt.Println(hex.EncodeToString(p))
			}
			return nil
		}
		out, err := b.StreamCallContext(ctx, rest[0], rest[1], rest[2], blockRange)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `bridge runs JSON-RPC, HTTP and block stream calls.

Usage:
  bridge [flags] rpc_call <url> <method> <params> <id>
  bridge [flags] api_call <url> [headers-json]
  bridge [flags] substreams_call <endpoint> <spkg> <module> [range]
  bridge [flags] serve

Stream calls read the API token from $%s.

Flags:
%s`, config.TokenEnvVar, flagSet.FlagUsages())
}
