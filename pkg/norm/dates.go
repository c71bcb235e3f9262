package norm

import (
	"regexp"
	"strconv"
	"time"

	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// EU day-first numeric date: dd.mm.yyyy with ".", "/" or "-" separators.
var dateRe = regexp.MustCompile(`(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})`)

// ParseDateEU finds the first day-first date in raw and returns it, or
// nil when no valid calendar date is present. Two-digit years map to
// 2000-2099; impossible dates (month 13, Feb 30) return nil.
func ParseDateEU(raw string) *models.Date {
	m := dateRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}

	if month < 1 || month > 12 {
		return nil
	}
	d := models.NewDate(year, time.Month(month), day)
	if d.Day() != day || int(d.Month()) != month || d.Year() != year {
		return nil
	}
	return &d
}
