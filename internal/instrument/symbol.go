package instrument

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Symbol synthesizes the canonical bit-exact symbol format from
// spec.md §6.1: {ASSET}-{YYYYMMDD}-{STRIKE}-{C|P}. Strike renders as
// an integer when its fractional part is zero, else the minimal
// decimal representation with trailing zeros stripped.
func Symbol(asset string, expiry time.Time, strike decimal.Decimal, isCall bool) string {
	side := "P"
	if isCall {
		side = "C"
	}
	return fmt.Sprintf("%s-%s-%s-%s", asset, expiry.UTC().Format("20060102"), formatStrike(strike), side)
}

func formatStrike(strike decimal.Decimal) string {
	s := strike.String()
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
