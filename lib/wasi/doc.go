// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package wasi defines the guest-visible protocol types of the WASIX
// system-call surface: descriptor identifiers, rights, open and
// descriptor flags, errno values, signals and exit codes.
//
// The numeric values of every constant in this package are protocol
// constants shared with guest programs and persisted in journals.
// Changing any of them breaks both guest ABI compatibility and the
// ability to replay existing journals.
//
// [Errno] implements error so that internal implementations can return
// guest-visible failures through ordinary Go error returns.
// [ErrnoFromError] converts errors from capability providers (which use
// the io/fs sentinels and host errno values) into the closest errno.
package wasi
