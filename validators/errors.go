// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import "fmt"

func errSampleTooLarge(size, total int) error {
	return fmt.Errorf("validators: sample size %d exceeds set size %d", size, total)
}
