package erp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// CleanTitle strips the markup the ERP embeds in event titles (<b>, <br>,
// badges, entities) and collapses whitespace.
func CleanTitle(s string) string {
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("br").ReplaceWithHtml(" ")
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

var (
	// 2025년 6월 10일 (화) 오후 2:30 / 2025년 6월 10일 14시 30분
	koreanDateRe = regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	// 2025.06.10 / 2025-6-10 / 2025/06/10
	dottedDateRe = regexp.MustCompile(`(\d{4})\s*[./-]\s*(\d{1,2})\s*[./-]\s*(\d{1,2})\.?`)

	clockRe  = regexp.MustCompile(`(오전|오후)?\s*(\d{1,2}):(\d{2})`)
	hourMiRe = regexp.MustCompile(`(오전|오후)?\s*(\d{1,2})\s*시(?:\s*(\d{1,2})\s*분)?`)
)

var errNoKoreanDate = errors.New("erp: no date found")

// ParseKoreanDateTime reads the date/time labels the ERP renders in its
// memo modal and list views. The date part is required; a missing time
// means midnight. 오전/오후 switch between AM and PM.
func ParseKoreanDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	m := koreanDateRe.FindStringSubmatchIndex(s)
	if m == nil {
		m = dottedDateRe.FindStringSubmatchIndex(s)
	}
	if m == nil {
		return time.Time{}, errNoKoreanDate
	}
	year, _ := strconv.Atoi(s[m[2]:m[3]])
	month, _ := strconv.Atoi(s[m[4]:m[5]])
	day, _ := strconv.Atoi(s[m[6]:m[7]])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("erp: invalid date in %q", s)
	}

	rest := s[m[1]:]
	hour, minute := 0, 0
	if c := clockRe.FindStringSubmatch(rest); c != nil {
		hour, _ = strconv.Atoi(c[2])
		minute, _ = strconv.Atoi(c[3])
		hour = applyMeridiem(c[1], hour)
	} else if c := hourMiRe.FindStringSubmatch(rest); c != nil {
		hour, _ = strconv.Atoi(c[2])
		if c[3] != "" {
			minute, _ = strconv.Atoi(c[3])
		}
		hour = applyMeridiem(c[1], hour)
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("erp: invalid time in %q", s)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Day() != day {
		// time.Date normalized e.g. 2월 30일 into March.
		return time.Time{}, fmt.Errorf("erp: invalid date in %q", s)
	}
	return t, nil
}

func applyMeridiem(meridiem string, hour int) int {
	switch meridiem {
	case "오후":
		if hour < 12 {
			return hour + 12
		}
	case "오전":
		if hour == 12 {
			return 0
		}
	}
	return hour
}
