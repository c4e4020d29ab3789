// Package messaging carries state snapshots and operator commands between the bot and its clients.
package messaging

// Wire topic names shared with dashboard clients.
const (
	TopicFairValue               = "fv"
	TopicQuote                   = "q"
	TopicQuoteStatus             = "qs"
	TopicMarketData              = "md"
	TopicOrderStatusReports      = "osr"
	TopicPosition                = "pos"
	TopicExchangeConnectivity    = "ec"
	TopicSubmitNewOrder          = "sno"
	TopicCancelOrder             = "cxl"
	TopicCancelAllOrders         = "cao"
	TopicMarketTrade             = "mt"
	TopicTrades                  = "t"
	TopicMessage                 = "msg"
	TopicTargetBasePosition      = "tbp"
	TopicTradeSafetyValue        = "tsv"
	TopicActiveChange            = "ac"
	TopicQuotingParametersChange = "qp-sub"
	TopicProductAdvertisement    = "pa"
)

// AllTopics every topic the bot publishes or receives on.
var AllTopics = []string{
	TopicFairValue,
	TopicQuote,
	TopicQuoteStatus,
	TopicMarketData,
	TopicOrderStatusReports,
	TopicPosition,
	TopicExchangeConnectivity,
	TopicSubmitNewOrder,
	TopicCancelOrder,
	TopicCancelAllOrders,
	TopicMarketTrade,
	TopicTrades,
	TopicMessage,
	TopicTargetBasePosition,
	TopicTradeSafetyValue,
	TopicActiveChange,
	TopicQuotingParametersChange,
	TopicProductAdvertisement,
}
