// Package currency defines the Currency record: integer-minor-unit amount
// formatting for a chart of accounts.
package currency

import (
	"fmt"
	"strings"

	"github.com/LeJamon/bookkeep/internal/bkerrors"
	"github.com/LeJamon/bookkeep/internal/hashedrecord"
)

// Currency scopes a Ledger's amounts to a minor-unit base and formatting
// symbol. base and decimals fix how an integer amount prints.
type Currency struct {
	ID          string
	Name        string
	PrefixSymbol string
	FxSymbol    string
	Base        int
	Decimals    int
	VendorID    string // optional, see internal/ledger/vendor
	Details     any
}

var columns = []string{
	"id", "name", "prefix_symbol", "fx_symbol", "base", "decimals", "vendor_id", "details",
}

func (c *Currency) Columns() []string { return columns }
func (c *Currency) Excluded() []string { return nil }

func (c *Currency) Fields() map[string]any {
	return map[string]any{
		"id":            c.ID,
		"name":          c.Name,
		"prefix_symbol": c.PrefixSymbol,
		"fx_symbol":     c.FxSymbol,
		"base":          int64(c.Base),
		"decimals":      int64(c.Decimals),
		"vendor_id":     c.VendorID,
		"details":       c.Details,
	}
}

// Prepare validates base/decimals and stamps c.ID.
func (c *Currency) Prepare() error {
	if c.Base < 2 {
		return bkerrors.NewValue("currency.Prepare", "base must be >= 2")
	}
	if c.Decimals < 0 {
		return bkerrors.NewValue("currency.Prepare", "decimals must be >= 0")
	}
	id, err := hashedrecord.GenerateID(c)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// scale returns base^decimals.
func (c *Currency) scale() int64 {
	scale := int64(1)
	for i := 0; i < c.Decimals; i++ {
		scale *= int64(c.Base)
	}
	return scale
}

// GetUnitsAndChange splits amount a into (whole units, remainder) at the
// currency's base^decimals boundary.
func (c *Currency) GetUnitsAndChange(a int64) (units int64, change int64) {
	scale := c.scale()
	return a / scale, a % scale
}

// Format renders amount a as prefix + whole + "." + change, zero-padded to
// Decimals digits in the currency's base.
func (c *Currency) Format(a int64) string {
	units, change := c.GetUnitsAndChange(a)
	if c.Decimals == 0 {
		return fmt.Sprintf("%s%d", c.PrefixSymbol, units)
	}
	digits := digitsInBase(change, c.Base, c.Decimals)
	return fmt.Sprintf("%s%d.%s", c.PrefixSymbol, units, digits)
}

func digitsInBase(v int64, base int, width int) string {
	if base == 10 {
		return fmt.Sprintf("%0*d", width, v)
	}
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	var b strings.Builder
	digits := make([]byte, 0, width)
	if v == 0 {
		digits = append(digits, '0')
	}
	for v > 0 {
		digits = append(digits, alphabet[v%int64(base)])
		v /= int64(base)
	}
	for len(digits) < width {
		digits = append(digits, '0')
	}
	for i := len(digits) - 1; i >= 0; i-- {
		b.WriteByte(digits[i])
	}
	return b.String()
}
