// Command ca-ctl runs one-shot head-end commands and prints the result as YAML.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unikmhz/npui-sub001/pkg/config"
	"github.com/unikmhz/npui-sub001/pkg/logger"
	"github.com/unikmhz/npui-sub001/pkg/network"
	"github.com/unikmhz/npui-sub001/pkg/protocol"
)

const usage = `Usage: ca-ctl [flags] <command> [args]

Commands:
  version                               head-end firmware version
  count <kind> [subtype]                number of records of kind
  get <kind> <from> <to> [subtype]      read records from..to
  find <kind> <query>                   search records by text
  subs <from> <to>                      read entitlement masks
  set-subs <from> <to> <bits> [prio]    write one mask to a range (bits: 0,5,127)
  bus-status                            raw bus status
  sync-all                              run a full access sync

Billing commands:
  entity <id>                           show an entity with its cards and entitlements
  entity-add <name> [address] [phone]   create an entity
  entity-count                          number of entities
  entity-delete <id>                    delete an entity with its cards
  bind <entity> <source> <card>...      bind cards to an entity
  unbind <source> <card>                remove a card binding

Kinds: packages, subscribers, log, epg
`

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	verbose := flag.Bool("v", false, "Log protocol traffic to stderr")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall command timeout")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Format: "text", Output: os.Stderr})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := dispatch(ctx, cfg, log, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ca-ctl: %v\n", err)
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		os.Exit(1)
	}
	if err := writeYAML(os.Stdout, out); err != nil {
		fmt.Fprintf(os.Stderr, "ca-ctl: %v\n", err)
		os.Exit(1)
	}
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func newClient(cfg *config.Config, log *logger.Logger) *network.Client {
	session := network.NewSession(cfg.Headend.Addr(), cfg.Headend.ConnectTimeout, log)
	return network.NewClient(session, network.ClientConfig{
		Address:      protocol.Address(cfg.Headend.Address),
		CheckReplies: cfg.Headend.CheckReplies,
	}, log, nil)
}

// withSession runs fn in a scoped, optionally authenticated session
func withSession(ctx context.Context, cfg *config.Config, client *network.Client, login bool, fn func() error) error {
	return client.Session().Do(ctx, func(*network.Session) error {
		if login {
			if err := client.Authenticate(cfg.Headend.Username, cfg.Headend.Password); err != nil {
				return err
			}
			defer func() { _, _ = client.Deauthenticate() }()
		}
		return fn()
	})
}
