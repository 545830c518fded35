// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for exported
// journal archives. It wraps filippo.io/age for the operations the
// wasix-journal export and import commands need: encrypt a stream to
// one or more x25519 recipients, and decrypt it with identities read
// from an identity file.
//
// Both directions stream, so archives of large journals never sit in
// memory. [Encrypt] can emit ASCII armor; [Decrypt] detects armor on
// its own.
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair
//   - [ParseRecipients] / [ReadIdentities] -- key parsing
//   - [Encrypt] / [Decrypt] -- streaming seal and open
package sealed
