// Package display turns measurements into the strings shown to the user.
// Formatting is stateless; everything it depends on is in Formatter.
package display

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/st-keller/librefollow/types"
)

// Placeholder strings.
const (
	Pending  = "..."
	NotReady = "Not Ready"
)

// DefaultTimeLayout renders "10:33:54 PM".
const DefaultTimeLayout = "3:04:05 PM"

// Formatter holds the presentation settings for one session.
type Formatter struct {
	TimeLayout string
	Location   *time.Location
	Language   language.Tag
}

// NewFormatter builds a Formatter. Empty arguments select the defaults:
// DefaultTimeLayout, the local time zone and English.
func NewFormatter(layout, zone, lang string) (Formatter, error) {
	f := Formatter{TimeLayout: layout, Location: time.Local, Language: language.English}
	if f.TimeLayout == "" {
		f.TimeLayout = DefaultTimeLayout
	}
	if zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return Formatter{}, fmt.Errorf("invalid time zone %q: %w", zone, err)
		}
		f.Location = loc
	}
	if lang != "" {
		tag, err := language.Parse(lang)
		if err != nil {
			return Formatter{}, fmt.Errorf("invalid language %q: %w", lang, err)
		}
		f.Language = tag
	}
	return f, nil
}

// Value formats a glucose value: an integer for mg/dL, one decimal for
// mmol/L, using the configured language's separators.
func (f Formatter) Value(v float64, unit types.Unit) string {
	p := message.NewPrinter(f.Language)
	if unit == types.MmolPerL {
		return p.Sprint(number.Decimal(v, number.Scale(1)))
	}
	return p.Sprint(number.Decimal(int64(v)))
}

// ReadingTime is the label for when a measurement was taken. An unparseable
// timestamp is shown verbatim; a valid one reads NotReady during warm-up.
func (f Formatter) ReadingTime(m types.Measurement, warmingUp bool) string {
	if !m.TimestampValid {
		return m.RawTimestamp
	}
	if warmingUp {
		return NotReady
	}
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	layout := f.TimeLayout
	if layout == "" {
		layout = DefaultTimeLayout
	}
	return m.Timestamp.In(loc).Format(layout)
}
