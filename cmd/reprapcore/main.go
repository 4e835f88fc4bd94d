package main

import (
	"flag"
	"fmt"
	"time"

	"reprapcore/internal/gcode"
	"reprapcore/internal/hostsim"
	"reprapcore/internal/logging"
	"reprapcore/internal/reply"
	"reprapcore/internal/reprap"
)

func main() {
	configPath := flag.String("config", "printer.cfg", "path to the printer configuration file")
	logLevel := flag.String("loglevel", "info", "debug, info, warn, or error")
	logFile := flag.String("logfile", "", "path to a rotating log file; empty disables file logging")
	sysDir := flag.String("sysdir", "sys", "directory holding config.g, homing macros, and other system macros")
	macroDir := flag.String("macrodir", "macros", "directory holding user-defined macros")
	storageRoot := flag.String("storage", "sd", "root directory standing in for the SD card / mass storage volume")
	nvramPath := flag.String("nvram", "nvram.toml", "path to the M500/M501 persisted settings file")
	numHeaters := flag.Int("heaters", 2, "number of heaters (bed + tool) the lock table reserves slots for")
	numFans := flag.Int("fans", 1, "number of fans the lock table reserves slots for")
	flag.Parse()

	logging.Init(parseLevel(*logLevel), *logFile, 10, 3, 28)
	logging.Infof("reprapcore starting, config=%s", *configPath)

	if _, _, err := reprap.LoadConfig(*configPath); err != nil {
		logging.Warnf("config load failed, continuing with firmware defaults: %v", err)
	}

	planner := hostsim.NewPlanner()
	heat := hostsim.NewHeat()
	plat := hostsim.NewPlatform(*storageRoot)
	monitor := hostsim.NewPrintMonitor()

	rr := reprap.New(*numHeaters, *numFans, planner, heat, plat, monitor, *macroDir, *sysDir, *nvramPath)

	usbSink := &stdoutSink{}
	rr.AddChannel(0, gcode.SourceUSB, 0, reply.Native, false, usbSink)
	rr.AddChannel(1, gcode.SourceFile, 0, reply.Native, true, nil)

	logging.Infof("reprapcore ready, ticking")
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for now := range ticker.C {
		if err := rr.Spin(now); err != nil {
			logging.Errorf("spin error: %v", err)
		}
	}
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.Debug
	case "warn":
		return logging.Warn
	case "error":
		return logging.Error
	default:
		return logging.Info
	}
}

// stdoutSink writes replies straight to the process's standard output,
// standing in for a USB/serial transport in the standalone build.
type stdoutSink struct{}

func (s *stdoutSink) WriteString(text string) { fmt.Print(text) }
func (s *stdoutSink) AttachBufferChain(c *reply.Chain) {
	fmt.Print(string(c.Bytes()))
	c.Release()
}
