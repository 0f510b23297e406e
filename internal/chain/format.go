package chain

import (
	diwalicommon "github.com/0xrupamp26/BasetiveDiwaliBonus/internal/common"

	"github.com/ethereum/go-ethereum/common"
)

// ShortAddress renders an address as 0x1234...abcd.
func ShortAddress(addr common.Address) string {
	return diwalicommon.ShortAddress(addr.Hex())
}
