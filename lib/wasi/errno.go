// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasi

import (
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// Errno is a guest-visible error number. Zero is success.
type Errno uint16

const (
	ErrnoSuccess      Errno = 0
	ErrnoAcces        Errno = 2
	ErrnoAddrinuse    Errno = 3
	ErrnoAddrnotavail Errno = 4
	ErrnoAfnosupport  Errno = 5
	ErrnoAgain        Errno = 6
	ErrnoBadf         Errno = 8
	ErrnoBusy         Errno = 10
	ErrnoCanceled     Errno = 11
	ErrnoConnrefused  Errno = 14
	ErrnoExist        Errno = 20
	ErrnoFault        Errno = 21
	ErrnoHostunreach  Errno = 23
	ErrnoIntr         Errno = 27
	ErrnoInval        Errno = 28
	ErrnoIo           Errno = 29
	ErrnoIsdir        Errno = 31
	ErrnoLoop         Errno = 32
	ErrnoMfile        Errno = 33
	ErrnoNametoolong  Errno = 37
	ErrnoNetunreach   Errno = 40
	ErrnoNoent        Errno = 44
	ErrnoNospc        Errno = 51
	ErrnoNosys        Errno = 52
	ErrnoNotconn      Errno = 53
	ErrnoNotdir       Errno = 54
	ErrnoNotempty     Errno = 55
	ErrnoNotsock      Errno = 57
	ErrnoNotsup       Errno = 58
	ErrnoPerm         Errno = 63
	ErrnoRofs         Errno = 69
	ErrnoSpipe        Errno = 70
	ErrnoXdev         Errno = 75
	ErrnoNotcapable   Errno = 76
)

var errnoNames = map[Errno]string{
	ErrnoSuccess:      "success",
	ErrnoAcces:        "acces",
	ErrnoAddrinuse:    "addrinuse",
	ErrnoAddrnotavail: "addrnotavail",
	ErrnoAfnosupport:  "afnosupport",
	ErrnoAgain:        "again",
	ErrnoBadf:         "badf",
	ErrnoBusy:         "busy",
	ErrnoCanceled:     "canceled",
	ErrnoConnrefused:  "connrefused",
	ErrnoExist:        "exist",
	ErrnoFault:        "fault",
	ErrnoHostunreach:  "hostunreach",
	ErrnoIntr:         "intr",
	ErrnoInval:        "inval",
	ErrnoIo:           "io",
	ErrnoIsdir:        "isdir",
	ErrnoLoop:         "loop",
	ErrnoMfile:        "mfile",
	ErrnoNametoolong:  "nametoolong",
	ErrnoNetunreach:   "netunreach",
	ErrnoNoent:        "noent",
	ErrnoNospc:        "nospc",
	ErrnoNosys:        "nosys",
	ErrnoNotconn:      "notconn",
	ErrnoNotdir:       "notdir",
	ErrnoNotempty:     "notempty",
	ErrnoNotsock:      "notsock",
	ErrnoNotsup:       "notsup",
	ErrnoPerm:         "perm",
	ErrnoRofs:         "rofs",
	ErrnoSpipe:        "spipe",
	ErrnoXdev:         "xdev",
	ErrnoNotcapable:   "notcapable",
}

// Name returns the lower-case WASI name of the errno ("badf", "noent").
func (e Errno) Name() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("errno(%d)", uint16(e))
}

func (e Errno) String() string { return e.Name() }

func (e Errno) Error() string { return "errno " + e.Name() }

// hostErrnos maps host error numbers to the guest-visible errno.
// Capability providers backed by the host file system surface these
// through *os.PathError and *os.LinkError.
var hostErrnos = map[unix.Errno]Errno{
	unix.EACCES:        ErrnoAcces,
	unix.EADDRINUSE:    ErrnoAddrinuse,
	unix.EADDRNOTAVAIL: ErrnoAddrnotavail,
	unix.EAGAIN:        ErrnoAgain,
	unix.EBADF:         ErrnoBadf,
	unix.EBUSY:         ErrnoBusy,
	unix.ECONNREFUSED:  ErrnoConnrefused,
	unix.EEXIST:        ErrnoExist,
	unix.EINTR:         ErrnoIntr,
	unix.EINVAL:        ErrnoInval,
	unix.EIO:           ErrnoIo,
	unix.EISDIR:        ErrnoIsdir,
	unix.ELOOP:         ErrnoLoop,
	unix.EMFILE:        ErrnoMfile,
	unix.ENAMETOOLONG:  ErrnoNametoolong,
	unix.ENOENT:        ErrnoNoent,
	unix.ENOSPC:        ErrnoNospc,
	unix.ENOSYS:        ErrnoNosys,
	unix.ENOTDIR:       ErrnoNotdir,
	unix.ENOTEMPTY:     ErrnoNotempty,
	unix.EPERM:         ErrnoPerm,
	unix.EROFS:         ErrnoRofs,
	unix.ESPIPE:        ErrnoSpipe,
	unix.EXDEV:         ErrnoXdev,
}

// ErrnoFromError returns the errno that best describes err. A nil error
// is ErrnoSuccess. Errors that already carry an Errno keep it; host
// errno values are translated; the io/fs sentinels map to their
// obvious counterparts. Anything else is ErrnoIo.
func ErrnoFromError(err error) Errno {
	if err == nil {
		return ErrnoSuccess
	}

	var errno Errno
	if errors.As(err, &errno) {
		return errno
	}

	var hostErrno unix.Errno
	if errors.As(err, &hostErrno) {
		if mapped, ok := hostErrnos[hostErrno]; ok {
			return mapped
		}
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrnoNoent
	case errors.Is(err, fs.ErrExist):
		return ErrnoExist
	case errors.Is(err, fs.ErrPermission):
		return ErrnoAcces
	case errors.Is(err, fs.ErrInvalid):
		return ErrnoInval
	case errors.Is(err, fs.ErrClosed):
		return ErrnoBadf
	}
	return ErrnoIo
}
