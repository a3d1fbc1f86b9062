package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"zebra-print/internal/app"
	"zebra-print/internal/config"
	"zebra-print/internal/cpcl"
	"zebra-print/internal/logging"
	"zebra-print/internal/printer"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: zebra-printctl [-config file] <command> [flags]

Commands:
  scan     list attached accessories and the printer match
  status   print the printer connection state
  test     print the test label
  print    print a part label (see print -h)
  render   write a part label document to stdout without printing
  watch    log connection changes until interrupted
`)
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "render" {
		part, err := parsePart(cmd, args)
		if err != nil {
			os.Exit(2)
		}
		fmt.Print(cpcl.Render(part.Label()))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start printer link", zap.Error(err))
		os.Exit(1)
	}
	defer core.Close()

	if err := run(ctx, core, cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		core.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, core *app.App, cmd string, args []string) error {
	switch cmd {
	case "scan":
		acc, found, err := core.Link.Scan(ctx)
		if err != nil {
			return err
		}
		if !found {
			fmt.Printf("no accessory speaks %s\n", core.Link.Protocol())
			return nil
		}
		fmt.Printf("%s\t%v\n", acc, acc.Protocols)
		return nil

	case "status":
		fmt.Println(core.Link.State())
		if acc, ok := core.Link.KnownAccessory(); ok {
			fmt.Printf("printer: %s\n", acc)
		}
		return nil

	case "test":
		return core.Service.PrintBarcode(ctx, "This is a test")

	case "print":
		part, err := parsePart(cmd, args)
		if err != nil {
			return err
		}
		return core.Service.PrintLabel(ctx, part.Label())

	case "watch":
		core.Link.OnStateChange(func(s printer.ConnectionState) {
			fmt.Println(s)
		})
		fmt.Println(core.Link.State())
		<-ctx.Done()
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command")
	}
}

func parsePart(cmd string, args []string) (cpcl.PartLabel, error) {
	part := cpcl.DemoPart
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.StringVar(&part.Name, "name", part.Name, "part name")
	fs.StringVar(&part.Barcode, "barcode", part.Barcode, "barcode content")
	fs.StringVar(&part.Number, "number", part.Number, "part number")
	fs.StringVar(&part.ShortName, "short", part.ShortName, "short name")
	fs.StringVar(&part.Location, "location", part.Location, "location line")
	fs.StringVar(&part.Min, "min", part.Min, "minimum stock")
	fs.StringVar(&part.Max, "max", part.Max, "maximum stock")
	if err := fs.Parse(args); err != nil {
		return part, err
	}
	return part, nil
}
