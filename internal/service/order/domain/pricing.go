package domain

// PricingRules 是运费与税率配置
type PricingRules struct {
	TaxRateBps            int64
	FlatShippingCents     int64
	FreeShippingThreshold int64 // 0 表示不包邮
}

// Shipping 折后金额达到门槛或者命中包邮券时免运费
func (r PricingRules) Shipping(subtotal, discount int64, freeShipping bool) int64 {
	if freeShipping {
		return 0
	}
	if r.FreeShippingThreshold > 0 && subtotal-discount >= r.FreeShippingThreshold {
		return 0
	}
	return r.FlatShippingCents
}

// Tax 按折后小计计税，向下取整
func (r PricingRules) Tax(subtotal, discount int64) int64 {
	base := subtotal - discount
	if base <= 0 || r.TaxRateBps <= 0 {
		return 0
	}
	return base * r.TaxRateBps / 10000
}

// Apply 写入运费和税，并重算应付
func (r PricingRules) Apply(o *Order, freeShipping bool) {
	o.ShippingCents = r.Shipping(o.SubtotalCents, o.DiscountCents, freeShipping)
	o.TaxCents = r.Tax(o.SubtotalCents, o.DiscountCents)
	o.RecomputeTotal()
}
