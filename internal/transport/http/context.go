// Copyright 2026 The Dott Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"

	"github.com/dottapps/auth-gateway/internal/broker"
)

type contextKey string

const edgeKey contextKey = "edge_metadata"

// GetEdge retrieves the CDN edge metadata resolved for this request.
func GetEdge(ctx context.Context) broker.EdgeMetadata {
	if val, ok := ctx.Value(edgeKey).(broker.EdgeMetadata); ok {
		return val
	}
	return broker.EdgeMetadata{}
}

func withEdge(ctx context.Context, edge broker.EdgeMetadata) context.Context {
	return context.WithValue(ctx, edgeKey, edge)
}
