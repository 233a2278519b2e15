package market

import "sort"

// Series 是同一 (symbol, timeframe) 下按 Timestamp 升序、去重的 K 线序列。
type Series []Candle

func (s Series) Empty() bool { return len(s) == 0 }

func (s Series) First() Candle {
	if len(s) == 0 {
		return Candle{}
	}
	return s[0]
}

func (s Series) Last() Candle {
	if len(s) == 0 {
		return Candle{}
	}
	return s[len(s)-1]
}

// Sort 原地按 Timestamp 升序排序。
func (s Series) Sort() {
	sort.Slice(s, func(i, j int) bool { return s[i].Timestamp < s[j].Timestamp })
}

// Clip 返回落在 [fromMs, toMs] 闭区间内的子序列（要求已升序）。
func (s Series) Clip(fromMs, toMs int64) Series {
	out := make(Series, 0, len(s))
	for _, c := range s {
		if c.Timestamp < fromMs || c.Timestamp > toMs {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Merge 按时间戳做并集：stored 与 fetched 重叠时以 stored 为准
// （本地数据已入库校验过，缓存在重叠处是权威）。结果升序。
func Merge(stored, fetched Series) Series {
	if len(fetched) == 0 {
		out := make(Series, len(stored))
		copy(out, stored)
		return out
	}
	seen := make(map[int64]struct{}, len(stored))
	out := make(Series, 0, len(stored)+len(fetched))
	for _, c := range stored {
		seen[c.Timestamp] = struct{}{}
		out = append(out, c)
	}
	for _, c := range fetched {
		if _, ok := seen[c.Timestamp]; ok {
			continue
		}
		out = append(out, c)
	}
	out.Sort()
	return out
}

// TrimToGrid 剔除与前一行间距不等于一个周期的行；首行没有前驱，恒保留。
// 孤立的离群缓存点因此不会进入逻辑序列（物理行仍保留在库中）。
func (s Series) TrimToGrid(tf Timeframe) Series {
	if len(s) == 0 {
		return s
	}
	step := tf.Millis()
	out := make(Series, 0, len(s))
	out = append(out, s[0])
	for i := 1; i < len(s); i++ {
		if s[i].Timestamp-s[i-1].Timestamp != step {
			continue
		}
		out = append(out, s[i])
	}
	return out
}
