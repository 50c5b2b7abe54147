// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package store_test

import "time"

var fixedNow = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
