// Package contract defines the per-retailer data contracts and the
// registry that resolves a retailer name to its validated contract.
package contract

import (
	"fmt"

	"pospanel/internal/config"
)

// SchemaFamily identifies which vendor export convention a raw file
// follows. The family is declared by the contract, never inferred from
// the data.
type SchemaFamily string

const (
	// FamilyCircana is the gross-totals convention: dollar/unit totals,
	// modeled base sales, and a direct volume column in an .xlsx workbook.
	FamilyCircana SchemaFamily = "circana"
	// FamilyCRX is the net-price convention: a vendor-computed average
	// net price, non-promoted splits, and optional decomposed accounting
	// columns in a .csv extract.
	FamilyCRX SchemaFamily = "crx"
)

// ParseSchemaFamily converts the configured family string.
func ParseSchemaFamily(s string) (SchemaFamily, error) {
	switch SchemaFamily(s) {
	case FamilyCircana:
		return FamilyCircana, nil
	case FamilyCRX:
		return FamilyCRX, nil
	default:
		return "", fmt.Errorf("unknown schema family %q", s)
	}
}

// ColumnBindings names the raw vendor columns behind each canonical
// concept. An empty binding means the vendor does not supply the concept.
type ColumnBindings struct {
	TotalDollars       string
	TotalUnits         string
	VolumeSales        string
	BaseDollars        string
	BaseUnits          string
	NonPromotedDollars string
	NonPromotedUnits   string
	AvgNetPrice        string
	AvgPricePerUnit    string
	PLDollars          string
	PLUnits            string

	GrossDollars    string
	GrossUnits      string
	CouponDollars   string
	CouponUnits     string
	RefundDollars   string
	RefundUnits     string
	DiscountDollars string
	PromotedUnits   string
}

// HasAccountingDecomposition reports whether the decomposed accounting
// columns the integrity validator cross-checks are all bound.
func (b ColumnBindings) HasAccountingDecomposition() bool {
	return b.GrossDollars != "" && b.GrossUnits != "" &&
		b.CouponDollars != "" && b.CouponUnits != "" &&
		b.RefundDollars != "" && b.RefundUnits != ""
}

// RetailerDataContract is the immutable per-retailer configuration the
// deriver works from.
type RetailerDataContract struct {
	Retailer string
	Family   SchemaFamily
	File     string

	HeaderOffset  int
	ProductColumn string
	WeekColumn    string

	Bindings ColumnBindings

	HasPromo      int
	HasCompetitor int

	// VolumeSalesFactor converts units to volume when no direct volume
	// column exists. Zero means no factor is configured.
	VolumeSalesFactor float64

	// MinNonPromotedUnits is the minimum weekly non-promoted unit count
	// before the non-promoted ratio is trusted as a base price.
	MinNonPromotedUnits float64
}

// CanComputePrice reports whether the contract binds enough columns to
// compute the weekly average price.
func (c *RetailerDataContract) CanComputePrice() bool {
	switch c.Family {
	case FamilyCRX:
		return c.Bindings.AvgNetPrice != ""
	default:
		return c.Bindings.TotalDollars != "" && c.Bindings.TotalUnits != ""
	}
}

// CanComputeBasePrice reports whether any base-price path is bound.
func (c *RetailerDataContract) CanComputeBasePrice() bool {
	if c.Bindings.BaseDollars != "" && c.Bindings.BaseUnits != "" {
		return true
	}
	return c.Bindings.NonPromotedDollars != "" && c.Bindings.NonPromotedUnits != ""
}

// CanComputeVolume reports whether volume is computable by any configured
// path: a direct column, or units times a configured factor.
func (c *RetailerDataContract) CanComputeVolume() bool {
	if c.Bindings.VolumeSales != "" {
		return true
	}
	return c.Bindings.TotalUnits != "" && c.VolumeSalesFactor > 0
}

// promoBearing reports whether any promo-sensitive column is bound, which
// has_promo=1 requires.
func (c *RetailerDataContract) promoBearing() bool {
	return (c.Bindings.BaseDollars != "" && c.Bindings.BaseUnits != "") ||
		(c.Bindings.NonPromotedDollars != "" && c.Bindings.NonPromotedUnits != "") ||
		c.Bindings.PromotedUnits != ""
}

// validate enforces the contract-level invariants: enough bindings for
// price and base price, and flags backed by the columns they require.
func (c *RetailerDataContract) validate() error {
	if !c.CanComputePrice() {
		return fmt.Errorf("contract cannot compute price: bind total dollars/units or avg net price")
	}
	if !c.CanComputeBasePrice() {
		return fmt.Errorf("contract cannot compute base price: bind base or non-promoted dollars/units")
	}
	if c.HasPromo == 1 && !c.promoBearing() {
		return fmt.Errorf("has_promo=1 but no promo-bearing column is bound")
	}
	if c.HasCompetitor == 1 && c.Family == FamilyCircana && c.Bindings.PLDollars == "" && c.Bindings.PLUnits == "" &&
		(c.Bindings.TotalDollars == "" || c.Bindings.TotalUnits == "") {
		return fmt.Errorf("has_competitor=1 but no private-label price source is bound")
	}
	if c.HasCompetitor == 1 && c.Family == FamilyCRX && c.Bindings.PLDollars == "" {
		return fmt.Errorf("has_competitor=1 but the net-price family binds no private-label dollars column")
	}
	if c.ProductColumn == "" {
		return fmt.Errorf("product column is not configured")
	}
	if c.WeekColumn == "" {
		return fmt.Errorf("week label column is not configured")
	}
	return nil
}

// fromConfig builds a contract from its file-level form plus the
// retailer flags and volume factor map.
func fromConfig(retailer string, cc config.ContractConfig, flags config.RetailerFlags, factor, minUnits float64) (*RetailerDataContract, error) {
	family, err := ParseSchemaFamily(cc.SchemaFamily)
	if err != nil {
		return nil, err
	}

	c := &RetailerDataContract{
		Retailer:      retailer,
		Family:        family,
		File:          cc.File,
		HeaderOffset:  cc.HeaderOffset,
		ProductColumn: cc.ProductColumn,
		WeekColumn:    cc.WeekColumn,
		Bindings: ColumnBindings{
			TotalDollars:       cc.Columns.TotalDollars,
			TotalUnits:         cc.Columns.TotalUnits,
			VolumeSales:        cc.Columns.VolumeSales,
			BaseDollars:        cc.Columns.BaseDollars,
			BaseUnits:          cc.Columns.BaseUnits,
			NonPromotedDollars: cc.Columns.NonPromotedDollars,
			NonPromotedUnits:   cc.Columns.NonPromotedUnits,
			AvgNetPrice:        cc.Columns.AvgNetPrice,
			AvgPricePerUnit:    cc.Columns.AvgPricePerUnit,
			PLDollars:          cc.Columns.PLDollars,
			PLUnits:            cc.Columns.PLUnits,
			GrossDollars:       cc.Columns.GrossDollars,
			GrossUnits:         cc.Columns.GrossUnits,
			CouponDollars:      cc.Columns.CouponDollars,
			CouponUnits:        cc.Columns.CouponUnits,
			RefundDollars:      cc.Columns.RefundDollars,
			RefundUnits:        cc.Columns.RefundUnits,
			DiscountDollars:    cc.Columns.DiscountDollars,
			PromotedUnits:      cc.Columns.PromotedUnits,
		},
		HasPromo:            flags.HasPromo,
		HasCompetitor:       flags.HasCompetitor,
		VolumeSalesFactor:   factor,
		MinNonPromotedUnits: minUnits,
	}

	if c.ProductColumn == "" {
		// Vendor-conventional defaults: circana ships "Product", crx "Item".
		if family == FamilyCRX {
			c.ProductColumn = "Item"
		} else {
			c.ProductColumn = "Product"
		}
	}
	if c.WeekColumn == "" {
		if family == FamilyCRX {
			c.WeekColumn = "Week Ending"
		} else {
			c.WeekColumn = "Time"
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}
