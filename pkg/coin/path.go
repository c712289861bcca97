package coin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	kserr "github.com/mrz1836/keystore/pkg/errors"
)

// HardenedKeyStart is the index of the first hardened child.
const HardenedKeyStart = hdkeychain.HardenedKeyStart

// ParsePath parses a BIP-32 path like "m/84'/0'/0'/0/0" into child indexes.
// Hardened components may be marked with ', h or H.
func ParsePath(path string) ([]uint32, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: derivation path %q must start with m", kserr.ErrInvalidInput, path)
	}

	indexes := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H") {
			hardened = true
			part = part[:len(part)-1]
		}

		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || n >= HardenedKeyStart {
			return nil, fmt.Errorf("%w: invalid component %q in derivation path %q", kserr.ErrInvalidInput, part, path)
		}

		idx := uint32(n)
		if hardened {
			idx += HardenedKeyStart
		}
		indexes = append(indexes, idx)
	}

	return indexes, nil
}

// FormatPath renders child indexes in canonical "m/44'/0'" form.
func FormatPath(indexes []uint32) string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range indexes {
		b.WriteString("/")
		if idx >= HardenedKeyStart {
			b.WriteString(strconv.FormatUint(uint64(idx-HardenedKeyStart), 10))
			b.WriteString("'")
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(idx), 10))
	}
	return b.String()
}

// allHardened reports whether every index is hardened.
func allHardened(indexes []uint32) bool {
	for _, idx := range indexes {
		if idx < HardenedKeyStart {
			return false
		}
	}
	return true
}
