// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

//go:build windows

package config

// WarnInsecurePermissions does nothing on Windows, where file access is
// governed by ACLs rather than Unix permission bits.
func WarnInsecurePermissions(string) {}
