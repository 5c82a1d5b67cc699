// Package stay は宿泊日と半開区間 [CheckIn, CheckOut) を扱う。
// 日付はタイムゾーンを持たない暦日として UTC の 0 時で表現する。
package stay

import (
	"fmt"
	"time"
)

const layout = "2006-01-02"

// Date は時刻を暦日（UTC 0時）に正規化する
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today は指定タイムゾーンでの今日の暦日を返す
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(now.In(loc))
}

// StartOfDay は暦日の0時をホテルのタイムゾーンでの時刻として返す
func StartOfDay(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ParseDate は "2006-01-02" 形式の日付を解析する
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日付の形式が不正です: %q", s)
	}
	return t, nil
}

// FormatDate は暦日を "2006-01-02" 形式で返す
func FormatDate(t time.Time) string {
	return t.Format(layout)
}

// DateRange はチェックイン日からチェックアウト日までの半開区間
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// NewDateRange は日付を正規化して区間を作る（順序の検証はしない）
func NewDateRange(checkIn, checkOut time.Time) DateRange {
	return DateRange{CheckIn: Date(checkIn), CheckOut: Date(checkOut)}
}

// IsValid はチェックアウトがチェックインより後かを返す
func (r DateRange) IsValid() bool {
	return r.CheckOut.After(r.CheckIn)
}

// Nights は宿泊数を返す
func (r DateRange) Nights() int {
	if !r.IsValid() {
		return 0
	}
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// Dates は区間に含まれる各泊の日付を返す（チェックアウト日は含まない）
func (r DateRange) Dates() []time.Time {
	n := r.Nights()
	dates := make([]time.Time, 0, n)
	for d := r.CheckIn; d.Before(r.CheckOut); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// Overlaps は2つの区間が1泊でも重なるかを返す
// 同日のチェックアウトとチェックインは重ならない
func (r DateRange) Overlaps(other DateRange) bool {
	return r.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(r.CheckOut)
}

// Contains は日付が区間内の宿泊日かを返す
func (r DateRange) Contains(date time.Time) bool {
	d := Date(date)
	return !d.Before(r.CheckIn) && d.Before(r.CheckOut)
}

// Intersect は重なる部分の区間を返す
func (r DateRange) Intersect(other DateRange) (DateRange, bool) {
	if !r.Overlaps(other) {
		return DateRange{}, false
	}
	in := r.CheckIn
	if other.CheckIn.After(in) {
		in = other.CheckIn
	}
	out := r.CheckOut
	if other.CheckOut.Before(out) {
		out = other.CheckOut
	}
	return DateRange{CheckIn: in, CheckOut: out}, true
}

func (r DateRange) String() string {
	return FormatDate(r.CheckIn) + "/" + FormatDate(r.CheckOut)
}
