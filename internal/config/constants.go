package config

// Canonical field names shared by the dataset loader, the analysis core and
// the exporters. Source spreadsheets carry Vietnamese labels; translation to
// these names happens exactly once, in the dataset loader.
const (
	FieldDate         = "date"
	FieldTicker       = "ticker"
	FieldClose        = "close"
	FieldNetBuyValue  = "net_buy_value"
	FieldNetBuyVolume = "net_buy_volume"
	FieldTotalVolume  = "total_volume"
	FieldBuyValue     = "buy_value"
	FieldSellValue    = "sell_value"
	FieldPE           = "pe"
	FieldPB           = "pb"
	FieldIndexLevel   = "index_level"
)

// SourceColumnMap translates source-language spreadsheet labels to canonical
// field names. A static enumerated table, never dynamic lookup: an unmapped
// label is rejected by the loader, not guessed at.
var SourceColumnMap = map[string]string{
	"Ngay":        FieldDate,
	"ngay":        FieldDate,
	"Date":        FieldDate,
	"date":        FieldDate,
	"TradingDate": FieldDate,

	"Close": FieldClose,
	"close": FieldClose,

	"KLGDRong": FieldNetBuyVolume, // khối lượng giao dịch ròng - net volume
	"klgdrong": FieldNetBuyVolume,
	"GTGDRong": FieldNetBuyValue, // giá trị giao dịch ròng - net value
	"gtgdrong": FieldNetBuyValue,
	"KLGD":     FieldTotalVolume,
	"klgd":     FieldTotalVolume,
	"GTMua":    FieldBuyValue,
	"GTBan":    FieldSellValue,

	"PE": FieldPE,
	"pe": FieldPE,
	"PB": FieldPB,
	"pb": FieldPB,

	"VNIndex": FieldIndexLevel,
	"vnindex": FieldIndexLevel,
}

// Signal names produced by the normalizer and consumed downstream.
const (
	SignalForeignADV     = "foreign_adv20"
	SignalForeignZScore  = "foreign_zscore"
	SignalSelfADV        = "self_adv20"
	SignalSelfZScore     = "self_zscore"
	SignalPEPercentile   = "pe_percentile"
	SignalPBPercentile   = "pb_percentile"
	SignalValuationPctl  = "valuation_percentile"
	SignalCompositeScore = "composite_score"
)
