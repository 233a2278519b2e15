package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in    string
		base  string
		quote string
	}{
		{"ETH/BTC", "ETH", "BTC"},
		{" eth/btc ", "ETH", "BTC"},
		{"ETHBTC", "ETH", "BTC"},
		{"BNBUSDT", "BNB", "USDT"},
		{"DOGEBUSD", "DOGE", "BUSD"},
		{"", "", ""},
		{"USDT", "", ""}, // 只剩计价货币，无 base
		{"XYZQQQ", "", ""},
	}
	for _, c := range cases {
		sym := Parse(c.in)
		assert.Equal(t, c.base, sym.Base, c.in)
		assert.Equal(t, c.quote, sym.Quote, c.in)
	}
}

func TestToBinance(t *testing.T) {
	assert.Equal(t, "ETHBTC", ToBinance("ETH/BTC"))
	assert.Equal(t, "ETHBTC", ToBinance("ethbtc"))
	// 无法识别的写法只做大写并去掉分隔符
	assert.Equal(t, "XYZQQQ", ToBinance("xyzqqq"))
}

func TestInternalAndValid(t *testing.T) {
	assert.Equal(t, "ETH/BTC", Parse("ETHBTC").Internal())
	assert.Empty(t, Symbol{Base: "ETH"}.Internal())
	assert.True(t, IsValid("ETH/BTC"))
	assert.False(t, IsValid("ETH"))
}
