// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package google

var (
	ConvertMessages = convertMessages
	BuildConfig     = buildConfig
)
