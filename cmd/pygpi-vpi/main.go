/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

// pygpi-vpi builds as a c-shared object that Verilog simulators load as a
// VPI plugin:
//
//	go build -buildmode=c-shared -o pygpi.vpl ./cmd/pygpi-vpi
//
// The simulator walks vlog_startup_routines before elaboration; the two
// exported routines below boot the embedded interpreter and arm the
// start-of-simulation entry hook.
package main

import "C"

import "github.com/crrow/pygpi/pkg/plugin"

//export pygpiInitRuntime
func pygpiInitRuntime() { plugin.InitRuntime() }

//export pygpiRegisterEntry
func pygpiRegisterEntry() { plugin.RegisterEntry() }

// main never runs in c-shared mode.
func main() {}
