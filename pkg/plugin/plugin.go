/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

// Package plugin is the simulator-facing entry layer. The simulator loads
// the shared object and runs its startup routines before elaboration; the
// first one boots the embedded interpreter and the second arms the
// start-of-simulation hook that hands control to the user runtime.
package plugin

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crrow/pygpi"
	"github.com/crrow/pygpi/pkg/gpi"
	"github.com/crrow/pygpi/pkg/pyrt"
	"github.com/crrow/pygpi/pkg/simmodule"
	"github.com/crrow/pygpi/pkg/vpi"
)

// Plugin ties the process-wide pieces together: the raw simulator client,
// the callback engine over it, the embedded interpreter and the extension
// module. The simulator loads us once per process.
type Plugin struct {
	cfg    *Config
	log    *zap.SugaredLogger
	client *vpi.SysClient
	bridge *gpi.Bridge
	rt     *pyrt.Runtime
	sim    *simmodule.Module
}

// active is set by InitRuntime on success. The second startup routine and
// the end-of-simulation hook find their state through it.
var active *Plugin

// InitRuntime is the first simulator startup routine. It loads
// configuration, boots the interpreter, registers the extension module and
// arms the end-of-simulation teardown. Failures are reported and swallowed:
// a plugin must not take the simulator down from its startup routine.
func InitRuntime() {
	p, err := initRuntime()
	if err != nil {
		if p != nil && p.log != nil {
			p.log.Errorf("startup failed: %v", err)
		} else {
			fmt.Println("pygpi: startup failed:", err)
		}
		return
	}
	active = p
}

// RegisterEntry is the second simulator startup routine: it arms the
// start-of-simulation callback that imports and runs the user runtime.
func RegisterEntry() {
	if active == nil {
		return
	}
	if _, err := active.bridge.RegisterStartupCallback(active.runEntry, nil); err != nil {
		active.log.Errorf("unable to arm the startup callback: %v", err)
	}
}

func initRuntime() (*Plugin, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	p := &Plugin{cfg: cfg, log: log}

	if cfg.PythonBin == "" {
		return p, fmt.Errorf("%s is not set; point it at the interpreter binary", EnvPythonBin)
	}

	p.client, err = vpi.NewSysClient()
	if err != nil {
		return p, fmt.Errorf("attach to simulator: %w", err)
	}
	p.bridge = gpi.New(p.client, log)
	log.Infow("simulator attached",
		"bridge", pygpi.Version,
		"product", p.bridge.Product(), "version", p.bridge.Version())

	p.rt, err = pyrt.Load()
	if err != nil {
		return p, err
	}
	if err := checkVersion(p.rt.Version(), cfg.MinPython); err != nil {
		return p, err
	}

	// The extension module must be on the inittab before the interpreter
	// comes up.
	p.sim = simmodule.New(p.rt, p.bridge, log)
	if err := p.sim.Register(); err != nil {
		return p, fmt.Errorf("register extension module: %w", err)
	}

	// The interpreter gets a sentinel argv; the simulator's real command
	// line goes to the entry function instead.
	if err := p.rt.Initialize(cfg.PythonBin, []string{"pygpi"}); err != nil {
		return p, err
	}
	log.Infow("interpreter up", "python", p.rt.Version())

	gil := p.rt.GILEnsure()
	if exe := p.rt.Executable(); exe != "" && exe != cfg.PythonBin {
		log.Warnw("interpreter executable differs from the configured binary",
			"sys.executable", exe, "configured", cfg.PythonBin)
	}
	p.rt.GILRelease(gil)

	p.client.RegisterCb(&vpi.CbData{
		Reason: vpi.CbEndOfSimulation,
		Rtn:    func(*vpi.CbData) int32 { p.shutdown(); return 0 },
	})
	return p, nil
}

// runEntry runs at the start-of-simulation event: put the working directory
// on the module search path, import the entry module and hand it the
// simulator command line. Any failure here ends the simulation; there is
// nothing to test without the runtime.
func (p *Plugin) runEntry(any) int32 {
	gil := p.rt.GILEnsure()
	defer p.rt.GILRelease(gil)

	if err := p.rt.PrependCwdToPath(); err != nil {
		p.log.Warnf("unable to extend sys.path: %v", err)
	}

	if err := p.callEntry(); err != nil {
		if p.rt.ErrOccurred() {
			p.rt.ErrPrint()
		}
		p.log.Errorf("entry point failed: %v", err)
		p.bridge.Stop()
		return -1
	}
	return 0
}

func (p *Plugin) callEntry() error {
	mod, err := p.rt.Import(p.cfg.EntryModule)
	if err != nil {
		return err
	}
	defer p.rt.DecRef(mod)

	fn, err := p.rt.Attr(mod, p.cfg.EntryFunc)
	if err != nil {
		return err
	}
	defer p.rt.DecRef(fn)

	// The command line crosses the boundary the way the interpreter treats
	// its own argv: locale-decoded with surrogateescape.
	argv := p.rt.NewList()
	if argv == 0 {
		return fmt.Errorf("unable to allocate argv list")
	}
	for _, a := range p.bridge.Argv() {
		s := p.rt.StrLocale(a)
		if s == 0 {
			p.rt.DecRef(argv)
			return fmt.Errorf("unable to decode argument %q", a)
		}
		err := p.rt.ListAppend(argv, s)
		p.rt.DecRef(s)
		if err != nil {
			p.rt.DecRef(argv)
			return err
		}
	}

	args := p.rt.NewTuple(1)
	if args == 0 {
		p.rt.DecRef(argv)
		return fmt.Errorf("unable to allocate argument tuple")
	}
	if err := p.rt.TupleSet(args, 0, argv); err != nil {
		p.rt.DecRef(argv)
		p.rt.DecRef(args)
		return err
	}
	defer p.rt.DecRef(args)

	res := p.rt.Call(fn, args, 0)
	if res == 0 {
		return fmt.Errorf("%s.%s raised", p.cfg.EntryModule, p.cfg.EntryFunc)
	}
	p.rt.DecRef(res)
	return nil
}

// shutdown runs at the end-of-simulation event: tell the runtime, then take
// the interpreter down.
func (p *Plugin) shutdown() {
	p.log.Info("simulation ending")
	p.sim.FireSimEvent("Simulation shutting down")
	p.rt.Finalize()
}

func checkVersion(have, min string) error {
	v, err := semver.NewVersion(have)
	if err != nil {
		return fmt.Errorf("unparseable interpreter version %q: %w", have, err)
	}
	floor, err := semver.NewVersion(min)
	if err != nil {
		return fmt.Errorf("unparseable minimum version %q: %w", min, err)
	}
	if v.LessThan(floor) {
		return fmt.Errorf("python %s is too old, need at least %s", have, min)
	}
	return nil
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	lg, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return lg.Sugar(), nil
}
