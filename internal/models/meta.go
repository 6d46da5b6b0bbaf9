package models

import (
	"encoding/json"
	"time"
)

// MetaKind discriminates the scalar stored in a MetaValue.
type MetaKind int

const (
	MetaKindString MetaKind = iota
	MetaKindNumber
	MetaKindDate
)

// MetaValue is a typed insight-metadata scalar: string, number or calendar
// date. It marshals to the plain JSON scalar so the wire shape stays a flat
// object.
type MetaValue struct {
	Kind MetaKind
	Str  string
	Num  float64
	Date time.Time
}

// MetaString wraps a string metadata value.
func MetaString(s string) MetaValue {
	return MetaValue{Kind: MetaKindString, Str: s}
}

// MetaNumber wraps a numeric metadata value.
func MetaNumber(n float64) MetaValue {
	return MetaValue{Kind: MetaKindNumber, Num: n}
}

// MetaInt wraps an integer count as a numeric metadata value.
func MetaInt(n int) MetaValue {
	return MetaValue{Kind: MetaKindNumber, Num: float64(n)}
}

// MetaDate wraps a calendar-day metadata value.
func MetaDate(t time.Time) MetaValue {
	return MetaValue{Kind: MetaKindDate, Date: t}
}

func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case MetaKindNumber:
		return json.Marshal(v.Num)
	case MetaKindDate:
		return json.Marshal(v.Date.Format(DateLayout))
	default:
		return json.Marshal(v.Str)
	}
}
