// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
