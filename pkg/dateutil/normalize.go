// Package dateutil 将各种来源的日期统一为 YYYY-MM-DD 规范形式。
//
// 日期可能来自原生日期选择器、手工输入或服务端往返，格式并不一致；
// 所有写入路径与渲染路径都必须使用同一规范形式，否则单元格会在加载与切换之间失配。
package dateutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// Layout 规范日期格式
const Layout = "2006-01-02"

var (
	isoPattern   = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	slashPattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	dmyPattern   = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)

	// 通用解析会把 "5"、"10:30"、"3-15" 解释为今天或今年的某天，必须带四位年份
	yearToken = regexp.MustCompile(`(^|\D)\d{4}(\D|$)`)
)

// Normalize 将任意日期表示转为规范日期字符串
// 支持 string、time.Time、*time.Time 与 nil；无法解析时返回 ok=false
func Normalize(v any) (string, bool) {
	switch d := v.(type) {
	case nil:
		return "", false
	case string:
		return NormalizeString(d)
	case time.Time:
		if d.IsZero() {
			return "", false
		}
		return FormatLocal(d), true
	case *time.Time:
		if d == nil || d.IsZero() {
			return "", false
		}
		return FormatLocal(*d), true
	default:
		return NormalizeString(fmt.Sprint(d))
	}
}

// NormalizeString 规范化字符串形式的日期
//
// 规则（按顺序）：
//   - 去除时间部分（按 T 与空格切分，取第一段）
//   - YYYY-MM-DD：按本地零点构造并校验
//   - M/D/YYYY：按 月/日/年 解释
//   - D-M-YYYY：按 日-月-年 解释
//   - 其余：含四位年份时通用解析，否则无效
func NormalizeString(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	s = strings.SplitN(s, "T", 2)[0]
	s = strings.SplitN(s, " ", 2)[0]
	if s == "" {
		return "", false
	}

	if m := isoPattern.FindStringSubmatch(s); m != nil {
		return build(m[1], m[2], m[3])
	}
	if m := slashPattern.FindStringSubmatch(s); m != nil {
		return build(m[3], m[1], m[2])
	}
	if m := dmyPattern.FindStringSubmatch(s); m != nil {
		return build(m[3], m[2], m[1])
	}

	if !yearToken.MatchString(s) {
		return "", false
	}
	t, err := now.ParseInLocation(time.Local, s)
	if err != nil {
		return "", false
	}
	return FormatLocal(t), true
}

// FormatLocal 以本地日历的年月日格式化
func FormatLocal(t time.Time) string {
	return t.In(time.Local).Format(Layout)
}

// Parse 解析规范日期为本地零点时间
func Parse(canonical string) (time.Time, error) {
	return time.ParseInLocation(Layout, canonical, time.Local)
}

// Label 生成列头显示文本（如 "Jan 5"）；无法解析时原样返回
func Label(raw string) string {
	canonical, ok := NormalizeString(raw)
	if !ok {
		return raw
	}
	t, err := Parse(canonical)
	if err != nil {
		return raw
	}
	return t.Format("Jan 2")
}

// Today 返回 clock 当天的规范日期
func Today(clock func() time.Time) string {
	return FormatLocal(clock())
}

// AddMonths 在规范日期上加减月份
func AddMonths(canonical string, months int) (string, bool) {
	t, err := Parse(canonical)
	if err != nil {
		return "", false
	}
	return FormatLocal(t.AddDate(0, months, 0)), true
}

// build 由年月日分量构造规范日期，日历上不存在的日期（如 2 月 30 日）视为无效
func build(year, month, day string) (string, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return "", false
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return "", false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return "", false
	}
	if m < 1 || m > 12 || d < 1 {
		return "", false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.Local)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), true
}
