// Command halctl is a maintenance shell for the HAL. It owns the hardware
// while it runs, so stop robohal first.
//
//	halctl -profile bench            interactive
//	halctl -c 'angle 0 0x3 90'       one command
//	halctl status                    one command from the arguments
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/abiosoft/ishell"
	"github.com/google/shlex"

	"robohal-go/internal/boot"
	"robohal-go/services/hal"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	profile    = flag.String("profile", "", "embedded profile when -config is empty")
	outputJSON = flag.Bool("json", false, "print output as JSON")
	cmdLine    = flag.String("c", "", "run one command line and exit")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "halctl:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := boot.LoadConfig(*configPath, *profile)
	if err != nil {
		return err
	}
	log, err := boot.NewLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	hw, err := hal.OpenHost()
	if err != nil {
		return err
	}
	defer hw.Close()

	svc, err := hal.New(hal.Options{Config: cfg, Hardware: hw, Logger: log})
	if err != nil {
		return err
	}
	if err := svc.Init(); err != nil {
		log.Warn("init incomplete", "err", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	args := flag.Args()
	if *cmdLine != "" {
		if args, err = shlex.Split(*cmdLine); err != nil {
			return err
		}
	}

	s := &Shell{HAL: svc, JSON: *outputJSON, Out: os.Stdout}
	sh := ishell.New()
	sh.SetPrompt("robohal > ")
	for _, c := range s.Cmds() {
		sh.AddCmd(c)
	}
	if len(args) > 0 {
		return sh.Process(args...)
	}
	sh.Run()
	return nil
}
