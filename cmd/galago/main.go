// Command galago is the CLI front-end for the binary remote monitor
// protocol server: "serve" runs the server against a loaded program,
// "monitor" attaches a bubbletea debugger client to a running server,
// and "info" dumps ELF metadata without starting anything.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zboralski/vicemon/internal/config"
	"github.com/zboralski/vicemon/internal/emulator"
	glog "github.com/zboralski/vicemon/internal/log"
	"github.com/zboralski/vicemon/internal/monitorsrv"
	"github.com/zboralski/vicemon/internal/tui"
)

var (
	verbose     bool
	configPath  string
	addrFlag    string
	autostart   string
	autorun     bool
	programRoot string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "galago",
		Short: "Binary remote monitor protocol server and debugger client",
		Long: `galago runs a length-framed binary remote monitor protocol server in
front of an emulated ARM64 machine, and ships a bubbletea debugger client
to attach to it.

The server emulates a single computer core (ARM64 via Unicorn Engine)
plus four idle drive cores, and speaks the same binary monitor wire
protocol VICE's remote debuggers use: memory read/write, register
read/write, checkpoints with conditions, single-stepping, keyboard
feed, and autostart.

Examples:
  galago serve --program app.elf --run      # start the server, autostart app.elf
  galago monitor 127.0.0.1:6502             # attach the debugger TUI
  galago info app.elf                        # dump ELF metadata`,
		DisableFlagsInUseLine: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config overlay (see internal/config)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the binary remote monitor protocol server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address, ip4://host:port (overrides config)")
	serveCmd.Flags().StringVar(&autostart, "program", "", "ELF program to autostart")
	serveCmd.Flags().BoolVar(&autorun, "run", false, "start execution immediately after autostart")
	serveCmd.Flags().StringVar(&programRoot, "program-root", "", "directory AUTOSTART filenames resolve against")
	rootCmd.AddCommand(serveCmd)

	monitorCmd := &cobra.Command{
		Use:   "monitor <host:port>",
		Short: "Attach the debugger TUI to a running monitor server",
		Args:  cobra.ExactArgs(1),
		RunE:  runMonitor,
	}
	rootCmd.AddCommand(monitorCmd)

	infoCmd := &cobra.Command{
		Use:   "info <binary.elf>",
		Short: "Show ELF metadata for a program",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	rootCmd.AddCommand(infoCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Default(), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	glog.Init(verbose)
	logger := glog.L

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if addrFlag != "" {
		cfg.BinaryMonitorServerAddress = addrFlag
	}
	addr, err := cfg.Address()
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}

	machine, err := emulator.NewMachine()
	if err != nil {
		return fmt.Errorf("create machine: %w", err)
	}
	defer machine.Close()

	if autostart != "" {
		if err := machine.Autostart(resolveProgramPath(autostart), autorun, 0, autostart); err != nil {
			return fmt.Errorf("autostart %s: %w", autostart, err)
		}
	}

	srv := monitorsrv.New(addr, machine, logger, programRoot)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("listening on %s\n", addr.String())
	return srv.Serve(ctx)
}

func resolveProgramPath(filename string) string {
	if programRoot == "" {
		return filename
	}
	return filepath.Join(programRoot, filename)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	return tui.Run(args[0])
}

func runInfo(cmd *cobra.Command, args []string) error {
	binaryPath := args[0]

	absPath, err := filepath.Abs(binaryPath)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("file not found: %s", absPath)
	}

	core, err := emulator.NewCore()
	if err != nil {
		return fmt.Errorf("create core: %w", err)
	}
	defer core.Close()

	info, err := core.LoadELF(absPath)
	if err != nil {
		return fmt.Errorf("load ELF: %w", err)
	}

	fmt.Printf("Binary: %s\n", filepath.Base(absPath))
	fmt.Printf("Machine: %s\n", info.Machine)
	fmt.Printf("Base:   0x%x\n", info.BaseAddr)
	fmt.Printf("End:    0x%x\n", info.EndAddr)
	fmt.Printf("Entry:  0x%x\n", info.Entry)
	fmt.Printf("Symbols: %d\n", len(info.Symbols))
	fmt.Printf("Imports: %d\n\n", len(info.Imports))

	entryPoint := info.FindEntryPoint("")
	if entryPoint != 0 {
		fmt.Printf("Auto-detected entry: 0x%x\n", entryPoint)
	}

	interesting := []string{"_start", "main", "monitor", "reset"}
	found := false
	for _, name := range interesting {
		for symName, addr := range info.FindSymbolsBySubstring(name) {
			if !found {
				fmt.Println("\nInteresting symbols:")
				found = true
			}
			fmt.Printf("  0x%x %s\n", addr, symName)
		}
	}

	return nil
}
