// Copyright (c) FlowMesh Authors.
// Licensed under the MIT License.

// Package types contains the cross-cutting types shared by every FlowMesh
// package: the structured Error with its ErrorCode taxonomy and the helpers
// used to classify failures for retry decisions.
package types
