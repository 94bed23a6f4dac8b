// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package agrinode is a container for the packages of a small greenhouse
// sensor node: a DHT11 single-wire driver, a two channel analog sampler and
// the serial telemetry they feed.
//
// The node runs a fixed 2 second acquisition cycle. See package node for the
// cycle itself and cmd/agrinode for the host wiring.
package agrinode
