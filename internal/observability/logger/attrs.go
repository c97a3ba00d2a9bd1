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

package logger

import "log/slog"

// Common attribute keys for consistent logging across the application

// Request attributes
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func Method(method string) slog.Attr {
	return slog.String("method", method)
}

func Path(path string) slog.Attr {
	return slog.String("path", path)
}

func RemoteAddr(addr string) slog.Attr {
	return slog.String("remote_addr", addr)
}

func UserAgent(ua string) slog.Attr {
	return slog.String("user_agent", ua)
}

func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

func Duration(ms int64) slog.Attr {
	return slog.Int64("duration_ms", ms)
}

// Identity attributes
func Email(email string) slog.Attr {
	return slog.String("email", email)
}

func Subject(sub string) slog.Attr {
	return slog.String("sub", sub)
}

func TenantID(id string) slog.Attr {
	return slog.String("tenant_id", id)
}

// TokenPreview logs only the first eight characters of a bearer token.
// Full token values must never reach the logs.
func TokenPreview(token string) slog.Attr {
	if len(token) > 8 {
		token = token[:8] + "..."
	}
	return slog.String("token_preview", token)
}

// Error attributes
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func ErrorCode(code string) slog.Attr {
	return slog.String("error_code", code)
}

// Component attributes
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Operation(op string) slog.Attr {
	return slog.String("operation", op)
}

// Backend call attributes
func BackendPath(path string) slog.Attr {
	return slog.String("backend_path", path)
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Edge attributes
func CFRay(ray string) slog.Attr {
	return slog.String("cf_ray", ray)
}

func ClientIP(ip string) slog.Attr {
	return slog.String("client_ip", ip)
}

// String creates a generic string attribute
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}
