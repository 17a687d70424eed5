// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"os"

	"filippo.io/age"
)

// ParseRecipients parses age public keys (age1... form) as given to
// the export command. At least the parse errors name the offending
// key, since several can be passed at once.
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// LoadIdentities reads age identities from a key file in the format
// age-keygen writes: comment lines and AGE-SECRET-KEY-1... lines.
func LoadIdentities(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parsing identities in %s: %w", path, err)
	}
	return identities, nil
}
