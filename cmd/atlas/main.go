// Command atlas is the operator CLI for the BiPRO transfer pipeline and
// commission reconciliation engine: it drives a carrier shipment run
// (spec §4.6) and the commission import/match/split/settle workflow
// (spec §4.7-§4.13) against a single YAML book file, following the same
// kingpin command-tree shape as tool/tctl.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/atlas-broker/atlas/lib/commission/book"
	"github.com/atlas-broker/atlas/lib/config"
)

// CLICommand is implemented by every atlas subcommand group, mirroring
// tool/tctl/common.CLICommand: each command plugs its own flags/args
// into the shared kingpin.Application, then claims the selected command
// string at dispatch time.
type CLICommand interface {
	Initialize(app *kingpin.Application, globals *GlobalFlags)
	TryRun(ctx context.Context, selectedCommand string) (match bool, err error)
}

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	BookPath   string
	Debug      bool
}

func main() {
	if err := Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", trace.UserMessage(err))
		os.Exit(1)
	}
}

// Run builds the CLI parser, wires every command group into it, and
// dispatches the selected command. Split out from main for testability.
func Run(args []string) error {
	app := kingpin.New("atlas", "BiPRO transfer and commission reconciliation operator CLI.")
	globals := &GlobalFlags{}

	app.Flag("config", "Path to the carrier registry YAML config.").
		Short('c').Default("atlas.yaml").StringVar(&globals.ConfigPath)
	app.Flag("book", "Path to the commission book YAML file (contracts, employees, commissions, settlements, audit log).").
		Short('b').Default("atlas-book.yaml").StringVar(&globals.BookPath)
	app.Flag("debug", "Enable debug logging.").BoolVar(&globals.Debug)

	commands := []CLICommand{
		&TransferCommand{},
		&CommissionCommand{},
	}
	for _, cmd := range commands {
		cmd.Initialize(app, globals)
	}

	selected, err := app.Parse(args)
	if err != nil {
		return trace.Wrap(err)
	}

	if globals.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, cmd := range commands {
		match, err := cmd.TryRun(ctx, selected)
		if match {
			return trace.Wrap(err)
		}
	}
	return trace.BadParameter("unrecognized command %q", selected)
}

// loadConfig is the shared config.Load call every command needs.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return cfg, nil
}

// loadBook opens the book file, or an empty one if it doesn't exist yet.
func loadBook(path string) (*book.Book, error) {
	b, err := book.Load(path)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return b, nil
}

// saveBook persists b back to path, wrapping any error from Save.
func saveBook(b *book.Book, path string) error {
	if err := b.Save(path); err != nil {
		return trace.Wrap(err, "saving book")
	}
	return nil
}

var systemClock = clockwork.NewRealClock()
