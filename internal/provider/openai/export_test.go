// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package openai

var (
	ConvertMessages = convertMessages
	BuildParams     = buildParams
)
