// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/luxfi/rabia"
)

// coinDomain separates this PRF's input space from any other hash use in
// the module, the same role protocol/wave/fpc.Selector's seed plays for
// its threshold PRF.
const coinDomain = "rabia-coin-v1"

// flipCoin derives the deterministic coin(slot, phase) bit every node
// computes identically without communication: SHA-256(domain‖slot‖phase),
// low bit of the digest selects V0 or V1. This specializes fpc.Selector's
// computeTheta (seed‖phase → normalized float in a threshold range) to a
// single bit with no configurable range, since Rabia's coin only ever
// needs to pick between V0 and V1.
func flipCoin(slot rabia.Slot, phase rabia.Phase) rabia.StateValue {
	h := sha256.New()
	h.Write([]byte(coinDomain))

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(slot))
	binary.BigEndian.PutUint64(buf[8:], uint64(phase))
	h.Write(buf[:])

	digest := h.Sum(nil)
	if digest[len(digest)-1]&1 == 0 {
		return rabia.V0
	}
	return rabia.V1
}
