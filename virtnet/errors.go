// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package virtnet

import (
	"fmt"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

var (
	// ErrUnsupported is returned by every call on a provider without
	// networking, including an Asking provider whose user declined.
	ErrUnsupported = fmt.Errorf("virtnet: networking is not enabled: %w", wasi.ErrnoNotsup)

	// ErrPoolExhausted is returned by DhcpAcquire when no address is
	// free.
	ErrPoolExhausted = fmt.Errorf("virtnet: no free address in the DHCP pool: %w", wasi.ErrnoAddrnotavail)

	// ErrPortsExhausted is returned when no ephemeral port is free.
	ErrPortsExhausted = fmt.Errorf("virtnet: no free ephemeral port: %w", wasi.ErrnoAddrinuse)
)
