package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dayMs = int64(86_400_000)

func dailyCandle(ts int64, close float64) Candle {
	d := decimal.NewFromFloat(close)
	return Candle{
		Timestamp: ts,
		Open:      d, High: d, Low: d, Close: d,
		Volume: decimal.NewFromInt(10),
		Symbol: "ETH/BTC",
	}
}

func dailySeries(startTs int64, n int) Series {
	out := make(Series, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, dailyCandle(startTs+int64(i)*dayMs, float64(i+1)))
	}
	return out
}

func TestMerge(t *testing.T) {
	t.Run("重叠时间戳以 stored 为准", func(t *testing.T) {
		stored := Series{dailyCandle(0, 1), dailyCandle(dayMs, 2)}
		fetched := Series{dailyCandle(dayMs, 99), dailyCandle(2*dayMs, 3)}
		merged := Merge(stored, fetched)
		require.Len(t, merged, 3)
		assert.True(t, merged[1].Close.Equal(decimal.NewFromInt(2)))
		assert.True(t, merged[2].Close.Equal(decimal.NewFromInt(3)))
	})

	t.Run("结果升序无重复", func(t *testing.T) {
		stored := dailySeries(3*dayMs, 2)
		fetched := dailySeries(0, 3)
		merged := Merge(stored, fetched)
		require.Len(t, merged, 5)
		for i := 1; i < len(merged); i++ {
			assert.Equal(t, dayMs, merged[i].Timestamp-merged[i-1].Timestamp)
		}
	})

	t.Run("fetched 为空返回 stored 拷贝", func(t *testing.T) {
		stored := dailySeries(0, 2)
		merged := Merge(stored, nil)
		require.Len(t, merged, 2)
		merged[0].Symbol = "X"
		assert.Equal(t, "ETH/BTC", stored[0].Symbol)
	})
}

func TestClip(t *testing.T) {
	s := dailySeries(0, 5)
	clipped := s.Clip(dayMs, 3*dayMs)
	require.Len(t, clipped, 3)
	assert.Equal(t, dayMs, clipped[0].Timestamp)
	assert.Equal(t, 3*dayMs, clipped[2].Timestamp)
}

func TestTrimToGrid(t *testing.T) {
	tf, err := ParseTimeframe("1d")
	require.NoError(t, err)

	t.Run("孤立离群行被剔除", func(t *testing.T) {
		s := Series{
			dailyCandle(0, 1),
			dailyCandle(10*dayMs, 2), // 离群
			dailyCandle(11*dayMs, 3),
			dailyCandle(12*dayMs, 4),
		}
		trimmed := s.TrimToGrid(tf)
		require.Len(t, trimmed, 3)
		assert.Equal(t, int64(0), trimmed[0].Timestamp)
		assert.Equal(t, 11*dayMs, trimmed[1].Timestamp)
	})

	t.Run("首行没有前驱恒保留", func(t *testing.T) {
		s := Series{dailyCandle(5 * dayMs, 1)}
		trimmed := s.TrimToGrid(tf)
		require.Len(t, trimmed, 1)
	})

	t.Run("完整网格原样保留", func(t *testing.T) {
		s := dailySeries(0, 4)
		assert.Len(t, s.TrimToGrid(tf), 4)
	})
}
