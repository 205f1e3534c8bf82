package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyProduct_SKU(t *testing.T) {
	q := IdentifyProduct("What is the stock for SKU-AB12?")
	assert.Equal(t, "SKU-AB12", q.SKU)
	assert.Equal(t, ConfidenceSKU, q.Confidence)
	assert.True(t, q.StockIntent)
}

func TestIdentifyProduct_SKUWithoutHyphen(t *testing.T) {
	q := IdentifyProduct("do you still sell AB12X")
	assert.Equal(t, "AB12X", q.SKU)
	assert.Equal(t, ConfidenceSKU, q.Confidence)
}

func TestIdentifyProduct_QuotedName(t *testing.T) {
	q := IdentifyProduct(`is the "Aurora Desk Lamp" available?`)
	assert.Empty(t, q.SKU)
	assert.Equal(t, "Aurora Desk Lamp", q.QuotedName)
	assert.Equal(t, ConfidenceQuoted, q.Confidence)
	assert.True(t, q.StockIntent)
}

func TestIdentifyProduct_SKUOutranksQuoted(t *testing.T) {
	q := IdentifyProduct(`check "Aurora Desk Lamp" SKU-AB12`)
	assert.Equal(t, "SKU-AB12", q.SKU)
	assert.Equal(t, ConfidenceSKU, q.Confidence)
}

func TestIdentifyProduct_CleanedTerms(t *testing.T) {
	q := IdentifyProduct("do you have any blue ceramic mugs in stock")
	assert.Empty(t, q.SKU)
	assert.Empty(t, q.QuotedName)
	assert.Equal(t, []string{"blue", "ceramic", "mugs"}, q.Terms)
	assert.Equal(t, ConfidenceTerms, q.Confidence)
	assert.True(t, q.StockIntent)
}

func TestIdentifyProduct_NoTarget(t *testing.T) {
	q := IdentifyProduct("is it in stock")
	assert.False(t, q.HasTarget())
	assert.True(t, q.StockIntent)
	assert.Zero(t, q.Confidence)
}

func TestIdentifyProduct_ApostropheNotQuote(t *testing.T) {
	// 缩写撇号不能被当成商品名引号
	q := IdentifyProduct("what's the price of the walnut shelf, it's nice")
	assert.Empty(t, q.QuotedName)
	require.NotEmpty(t, q.Terms)
	assert.Contains(t, q.Terms, "walnut")
	assert.Contains(t, q.Terms, "shelf")
}

func TestExtractOrderNumber(t *testing.T) {
	assert.Equal(t, "100234", ExtractOrderNumber("where is my order #100234"))
	assert.Equal(t, "100234", ExtractOrderNumber("order 100234 status"))
	assert.Equal(t, "98765", ExtractOrderNumber("ORD-98765 hasn't arrived"))
	assert.Empty(t, ExtractOrderNumber("where is my package"))
}

func TestAsksOrderOverview(t *testing.T) {
	assert.True(t, AsksOrderOverview("can you show my recent orders"))
	assert.True(t, AsksOrderOverview("what's my order status"))
	assert.True(t, AsksOrderOverview("where is my package"))
	assert.False(t, AsksOrderOverview("do you sell desk lamps"))
	assert.False(t, AsksOrderOverview("how do I order a replacement part"))
}
