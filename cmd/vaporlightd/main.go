package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	logxi "github.com/mgutz/logxi/v1"

	"github.com/fxkr/vaporlight"
	"github.com/fxkr/vaporlight/version"

	"github.com/karlmutch/envflag"
	"github.com/karlmutch/errors"
)

var (
	logger = logxi.New("vaporlightd")

	configFile = flag.String("config", "vaporlight.yaml", "The YAML configuration file with tokens, LED topology, and endpoints")
	listenOpt  = flag.String("listen", "", "Override the client listen address from the configuration")
	outputOpt  = flag.String("output", "", "Override the hardware output URL from the configuration")
	refresh    = flag.Duration("refresh", 30*time.Millisecond, "Interval between frame composites sent to the hardware")
	verbose    = flag.Bool("v", false, "When enabled will print internal logging for this tool")
)

func usage() {
	fmt.Fprintln(os.Stderr, path.Base(os.Args[0]))
	fmt.Fprintln(os.Stderr, "usage: ", os.Args[0], "[options]       clients ← TCP → LED bus (vaporlightd)      ", version.GitHash, "    ", version.BuildTime)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "vaporlightd is a router between vaporlight protocol clients and bus attached LED boards")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Options:")
	fmt.Fprintln(os.Stderr, "")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment Variables:")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options can also be extracted from environment variables by changing dashes '-' to underscores and using upper case.")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "log levels are handled by the LOGXI env variables, these are documented at https://github.com/mgutz/logxi")
}

func init() {
	flag.Usage = usage
}

func main() {

	// Parse the CLI flags
	if !flag.Parsed() {
		envflag.Parse()
	}

	// Turn off logging regardless of the default levels if the verbose flag is not enabled
	if *verbose {
		logger.SetLevel(logxi.LevelDebug)
	}

	logger.Debug(fmt.Sprintf("%s built at %s, against commit id %s\n", os.Args[0], version.BuildTime, version.GitHash))

	cfg, err := vaporlight.LoadConfig(*configFile)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}
	if *listenOpt != "" {
		cfg.Listen = *listenOpt
	}
	if *outputOpt != "" {
		cfg.Output = *outputOpt
	}

	gw, err := vaporlight.NewGateway(cfg)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}

	quitC := make(chan struct{})
	errorC := make(chan errors.Error, 8)

	go runWatch(errorC, quitC)

	gw.Start(*refresh, errorC, quitC)
	logger.Info(fmt.Sprintf("listening on %s, output %s", gw.Addr(), cfg.Output))

	if *verbose {
		go runMonitoring(gw.Mixer(), quitC)
	}

	// Wait until an interrupt or kill is received then close quitC so every
	// component drains and stops
	stopC := make(chan os.Signal, 1)
	signal.Notify(stopC, os.Interrupt, syscall.SIGTERM)
	<-stopC

	close(quitC)
}
