/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package main

// The startup table lives in its own file: a preamble with definitions
// cannot share a file with exported functions.

/*
extern void pygpiInitRuntime(void);
extern void pygpiRegisterEntry(void);

void (*vlog_startup_routines[])(void) = {
	pygpiInitRuntime,
	pygpiRegisterEntry,
	0,
};
*/
import "C"
