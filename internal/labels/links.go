package labels

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ShortHex renders 0x1234…abcd.
func ShortHex(addr common.Address) string {
	h := addr.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}

// AddressLink renders a markdown link to the execution explorer.
func AddressLink(explorer, label string, addr common.Address) string {
	return fmt.Sprintf("[%s](%s/address/%s)", label, strings.TrimRight(explorer, "/"), addr.Hex())
}

// TxLink renders a markdown link to a transaction.
func TxLink(explorer string, hash common.Hash) string {
	h := hash.Hex()
	return fmt.Sprintf("[%s](%s/tx/%s)", h[:10]+"…", strings.TrimRight(explorer, "/"), h)
}

// ValidatorLink renders a link to a validator on the beacon explorer.
// id is either a validator index or a 0x-prefixed BLS public key.
func ValidatorLink(beaconExplorer, id string) string {
	var label string
	if strings.HasPrefix(id, "0x") && len(id) > 14 {
		label = id[:10] + "…"
	} else {
		label = "#" + id
	}
	return fmt.Sprintf("[%s](%s/validator/%s)", label, strings.TrimRight(beaconExplorer, "/"), id)
}

// IsPubkey reports whether v looks like a 48 byte BLS public key.
func IsPubkey(v []byte) bool {
	return len(v) == 48
}
