package domain

import "math"

// MaxStars 是半星评分控件的星数。
const MaxStars = 5

// 星位取值（StarGlyphs 的元素）。
const (
	SlotEmpty = 0
	SlotHalf  = 1
	SlotFull  = 2
)

// StarRating 把 0-10 的外部评分映射为 0-5 的半星展示值：floor(rating+0.5)/2。
//
// 例：7 -> 3.5，10 -> 5。超出范围的输入会被截断，NaN 视为 0。
func StarRating(rating float64) float64 {
	if math.IsNaN(rating) {
		return 0
	}
	v := math.Floor(rating+0.5) / 2
	if v < 0 {
		return 0
	}
	if v > MaxStars {
		return MaxStars
	}
	return v
}

// StarGlyphs 把半星值展开为 MaxStars 个星位（SlotFull/SlotHalf/SlotEmpty）。
func StarGlyphs(stars float64) [MaxStars]int {
	var out [MaxStars]int
	halves := int(math.Round(stars * 2))
	for i := 0; i < MaxStars; i++ {
		switch {
		case halves >= 2:
			out[i] = SlotFull
			halves -= 2
		case halves == 1:
			out[i] = SlotHalf
			halves = 0
		}
	}
	return out
}

// Glyph 返回星位对应的字符：★ 满星，⯪ 半星，☆ 空星。
func Glyph(slot int) string {
	switch slot {
	case SlotFull:
		return "★"
	case SlotHalf:
		return "⯪"
	}
	return "☆"
}

// GlyphClass 返回星位对应的 CSS class：full、half、empty。
func GlyphClass(slot int) string {
	switch slot {
	case SlotFull:
		return "full"
	case SlotHalf:
		return "half"
	}
	return "empty"
}
