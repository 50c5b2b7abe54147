// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package anthropic

var (
	ConvertMessages = convertMessages
	ExtractSchema   = extractSchema
)
