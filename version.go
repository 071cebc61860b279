/*
 * MIT License
 * Copyright (c) 2026 Crrow
 */

package pygpi

// Version is the semantic version of the bridge.
const Version = "0.0.1"
