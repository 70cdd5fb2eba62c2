package ics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dailyagenda/internal/agenda"
)

// icsDuration is an RFC 5545 DURATION value. Days and weeks are nominal
// (calendar) units; the clock part is exact.
type icsDuration struct {
	negative bool
	days     int
	clock    time.Duration
}

func parseDuration(s string) (icsDuration, error) {
	var d icsDuration
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return d, errors.New("empty duration")
	}
	switch v[0] {
	case '-':
		d.negative = true
		v = v[1:]
	case '+':
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") || len(v) < 2 {
		return d, fmt.Errorf("invalid duration %q", s)
	}
	v = v[1:]

	inTime := false
	parts := 0
	num := ""
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'T':
			if num != "" || inTime {
				return d, fmt.Errorf("invalid duration %q", s)
			}
			inTime = true
		default:
			if num == "" {
				return d, fmt.Errorf("invalid duration %q", s)
			}
			n, err := strconv.Atoi(num)
			if err != nil {
				return d, fmt.Errorf("invalid duration %q: %w", s, err)
			}
			num = ""
			parts++
			switch {
			case r == 'W' && !inTime:
				d.days += 7 * n
			case r == 'D' && !inTime:
				d.days += n
			case r == 'H' && inTime:
				d.clock += time.Duration(n) * time.Hour
			case r == 'M' && inTime:
				d.clock += time.Duration(n) * time.Minute
			case r == 'S' && inTime:
				d.clock += time.Duration(n) * time.Second
			default:
				return d, fmt.Errorf("invalid duration %q", s)
			}
		}
	}
	if num != "" || parts == 0 {
		return d, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// addTo returns p shifted by d, keeping p's kind.
func (d icsDuration) addTo(p agenda.RawPoint) agenda.RawPoint {
	sign := 1
	if d.negative {
		sign = -1
	}
	v := p.Value.AddDate(0, 0, sign*d.days).Add(time.Duration(sign) * d.clock)
	if p.Kind == agenda.KindDate {
		return agenda.DatePoint(v.Date())
	}
	return agenda.RawPoint{Kind: p.Kind, Value: v}
}
