package model

// Channel is the trading context a document belongs to.
type Channel string

const (
	ChannelSales    Channel = "sales"
	ChannelPurchase Channel = "purchase"
	ChannelInternal Channel = "internal"
)

// DocType is one of the five commercial document kinds.
type DocType string

const (
	DocTypeQuote    DocType = "DV"
	DocTypeOrder    DocType = "BC"
	DocTypeDelivery DocType = "BL"
	DocTypeReturn   DocType = "BR"
	DocTypeInvoice  DocType = "FA"
)

// DocStatus enum constants
const (
	StatusDraft     = "draft"
	StatusValidated = "validated"
	StatusOrdered   = "ordered"
	StatusDelivered = "delivered"
	StatusInvoiced  = "invoiced"
	StatusPosted    = "posted"
)

// PaymentStatus enum constants (invoices only)
const (
	PaymentUnpaid  = "unpaid"
	PaymentPartial = "partial"
	PaymentPaid    = "paid"
)

// Accounting inclusion is resolved once when a document is created.
const (
	AccountingIncluded      = "included"
	AccountingExcluded      = "excluded"
	AccountingNotApplicable = "not_applicable"
)

// ChannelPolicy holds the per-channel rules used by the transformation engine.
type ChannelPolicy struct {
	Prefix string
	// DeliverySign is applied to line quantities when a BL is issued.
	DeliverySign       int
	DefaultTaxIncluded bool
	DefaultAccounting  string
}

var channelPolicies = map[Channel]ChannelPolicy{
	ChannelSales:    {Prefix: "V", DeliverySign: -1, DefaultTaxIncluded: true, DefaultAccounting: AccountingIncluded},
	ChannelPurchase: {Prefix: "A", DeliverySign: 1, DefaultTaxIncluded: true, DefaultAccounting: AccountingIncluded},
	ChannelInternal: {Prefix: "I", DeliverySign: -1, DefaultTaxIncluded: false, DefaultAccounting: AccountingExcluded},
}

// Policy returns the policy of the channel and whether the channel is known.
func (c Channel) Policy() (ChannelPolicy, bool) {
	p, ok := channelPolicies[c]
	return p, ok
}

func (c Channel) Valid() bool {
	_, ok := channelPolicies[c]
	return ok
}

func (t DocType) Valid() bool {
	switch t {
	case DocTypeQuote, DocTypeOrder, DocTypeDelivery, DocTypeReturn, DocTypeInvoice:
		return true
	}
	return false
}

// forwardEdges is the linear transformation chain DV -> BC -> BL -> FA.
var forwardEdges = map[DocType]DocType{
	DocTypeQuote:    DocTypeOrder,
	DocTypeOrder:    DocTypeDelivery,
	DocTypeDelivery: DocTypeInvoice,
}

// Next returns the target type of a transformation, false when t is terminal.
func (t DocType) Next() (DocType, bool) {
	next, ok := forwardEdges[t]
	return next, ok
}

// Returnable reports whether a BR may be spawned from a document of this type.
func (t DocType) Returnable() bool {
	return t == DocTypeDelivery || t == DocTypeInvoice
}

// StatusFor is the status given to both the new document and its source
// when a transformation targets t.
func StatusFor(t DocType) string {
	switch t {
	case DocTypeOrder:
		return StatusOrdered
	case DocTypeDelivery:
		return StatusDelivered
	case DocTypeInvoice:
		return StatusInvoiced
	default:
		return StatusValidated
	}
}
