// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// Keypair holds an age x25519 keypair as strings.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format. It
	// must never be logged or passed on a command line.
	PrivateKey string

	// PublicKey is the corresponding public key in age1... format.
	PublicKey string
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}
	return &Keypair{
		PrivateKey: identity.String(),
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// ParseRecipients parses age public keys (age1... format). At least
// one key is required.
func ParseRecipients(recipientKeys []string) ([]age.Recipient, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// ReadIdentities reads age identities from an identity file, or from
// stdin if path is "-". Blank lines and # comments are ignored.
func ReadIdentities(path string) ([]age.Identity, error) {
	var source io.Reader
	if path == "-" {
		source = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		source = file
	}
	identities, err := age.ParseIdentities(source)
	if err != nil {
		return nil, fmt.Errorf("parsing identities from %s: %w", path, err)
	}
	return identities, nil
}

// Encrypt returns a writer that encrypts everything written to it to
// the recipients and forwards the ciphertext to dst. With armored set
// the ciphertext is PEM-style ASCII. The caller must Close the writer
// to flush the final chunk; Close does not close dst.
func Encrypt(dst io.Writer, recipients []age.Recipient, armored bool) (io.WriteCloser, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	if !armored {
		writer, err := age.Encrypt(dst, recipients...)
		if err != nil {
			return nil, fmt.Errorf("creating age encryptor: %w", err)
		}
		return writer, nil
	}

	armorWriter := armor.NewWriter(dst)
	writer, err := age.Encrypt(armorWriter, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	return &armoredWriter{WriteCloser: writer, armor: armorWriter}, nil
}

type armoredWriter struct {
	io.WriteCloser
	armor io.WriteCloser
}

func (w *armoredWriter) Close() error {
	if err := w.WriteCloser.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := w.armor.Close(); err != nil {
		return fmt.Errorf("finalizing armor: %w", err)
	}
	return nil
}

// Decrypt returns a reader of the plaintext sealed in src. Armored and
// binary ciphertext are both accepted. The returned reader fails if
// the ciphertext was tampered with.
func Decrypt(src io.Reader, identities []age.Identity) (io.Reader, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("at least one identity is required")
	}

	buffered := bufio.NewReader(src)
	var source io.Reader = buffered
	if start, _ := buffered.Peek(len(armor.Header)); bytes.Equal(start, []byte(armor.Header)) {
		source = armor.NewReader(buffered)
	}

	reader, err := age.Decrypt(source, identities...)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, fmt.Errorf("no identity matches the archive recipients: %w", err)
		}
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return reader, nil
}

// FormatRecipients formats a list of recipient public keys as a multi-line
// string suitable for display or logging (no private keys involved).
func FormatRecipients(recipientKeys []string) string {
	return strings.Join(recipientKeys, "\n")
}
