package utils

import (
	"time"
)

// 交易时段（A股）：上午 09:30-11:30，下午 13:00-15:00
type session struct {
	startHour, startMin int
	endHour, endMin     int
}

var tradingSessions = []session{
	{9, 30, 11, 30},
	{13, 0, 15, 0},
}

// IsTradingDay 判断是否为交易日（周一至周五，不含法定节假日）
// 节假日数据依赖外部维护，这里只做周末过滤
func IsTradingDay(t time.Time) bool {
	t = t.In(GlobalLocation)
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsTradingHours 判断是否在交易时段内
func IsTradingHours(t time.Time) bool {
	t = t.In(GlobalLocation)
	minutes := t.Hour()*60 + t.Minute()
	for _, s := range tradingSessions {
		start := s.startHour*60 + s.startMin
		end := s.endHour*60 + s.endMin
		if minutes >= start && minutes <= end {
			return true
		}
	}
	return false
}

// IsTradingTime 判断是否为交易日且在交易时段内
func IsTradingTime(t time.Time) bool {
	return IsTradingDay(t) && IsTradingHours(t)
}

// BeforeTimeOfDay 判断当前时间是否早于当天的 hh:mm
func BeforeTimeOfDay(t time.Time, hour, minute int) bool {
	t = t.In(GlobalLocation)
	return t.Hour()*60+t.Minute() < hour*60+minute
}

// AfterTimeOfDay 判断当前时间是否已过当天的 hh:mm，恰好该分钟内不算过
func AfterTimeOfDay(t time.Time, hour, minute int) bool {
	t = t.In(GlobalLocation)
	return t.Hour()*60+t.Minute() > hour*60+minute
}

// TradeDate 返回配置时区下的交易日期字符串 YYYY-MM-DD
func TradeDate(t time.Time) string {
	return t.In(GlobalLocation).Format("2006-01-02")
}
