// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rabia defines the shared domain types and cross-component events
// for the Rabia randomized binary-agreement protocol: node identity, the
// per-phase state value lattice, correlation-tagged command batches, and the
// events the network/topology/leader/core layers exchange with the
// application and with each other.
package rabia
