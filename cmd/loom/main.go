package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/app"
	"github.com/ternarybob/loom/internal/common"
	"github.com/ternarybob/loom/internal/engine"
	"github.com/ternarybob/loom/internal/program"
)

// configPaths allows multiple -config flags; later files override earlier
// ones.
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles   configPaths
	listenAddr    = flag.String("listen", "", "Worker listen address (overrides config)")
	adminAddr     = flag.String("admin", "", "Admin HTTP address (overrides config)")
	builtinWorker = flag.Bool("builtin", false, "Attach the builtin opcode worker in-process")
	showVersion   = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (repeatable, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: loom [flags] <command>

Commands:
  run <program.ir>    load a program, start an entry thread, serve workers
  serve               serve workers without loading a program
  check <program.ir>  load and validate a program, then exit

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("loom version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	// Auto-discover a config file in the working directory.
	if len(configFiles) == 0 {
		if _, err := os.Stat("loom.toml"); err == nil {
			configFiles = append(configFiles, "loom.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(config, *listenAddr, *adminAddr)

	logger := common.SetupLogger(config)

	command := flag.Arg(0)
	switch command {
	case "check":
		os.Exit(runCheck(flag.Arg(1)))
	case "run", "serve":
		os.Exit(runServe(config, logger, command))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		usage()
		os.Exit(2)
	}
}

func loadProgram(path string) ([]byte, int) {
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing program file argument")
		return nil, 2
	}
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		return nil, 1
	}
	return src, 0
}

func runCheck(path string) int {
	src, code := loadProgram(path)
	if code != 0 {
		return code
	}
	cmds, loadErr := program.Load(string(src))
	if loadErr != nil {
		fmt.Fprintln(os.Stderr, program.FormatError(string(src), loadErr))
		return 1
	}
	fmt.Printf("%s: %d commands ok\n", path, len(cmds))
	return 0
}

func runServe(config *common.Config, logger arbor.ILogger, command string) int {
	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialise application")
		return 1
	}

	if *builtinWorker {
		application.EnableBuiltinWorker()
	}

	var entryCmds int
	if command == "run" {
		src, code := loadProgram(flag.Arg(1))
		if code != 0 {
			return code
		}
		cmds, loadErr := program.Load(string(src))
		if loadErr != nil {
			fmt.Fprintln(os.Stderr, program.FormatError(string(src), loadErr))
			return 1
		}
		application.Dispatcher.LoadProgram(cmds)
		entryCmds = len(cmds)
	}

	common.PrintBanner(config, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start application")
		return 1
	}

	if command == "run" {
		reply := make(chan string, 1)
		application.Dispatcher.Submit(engine.JobAddRequest{IP: config.Engine.EntryLabel, Reply: reply})
		thread := <-reply
		logger.Info().
			Str("thread", thread).
			Str("entry", config.Engine.EntryLabel).
			Int("commands", entryCmds).
			Msg("Entry thread started")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	common.PrintShutdownBanner(logger)
	application.Stop()
	return 0
}
