package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/roman-kulish/seedscan/internal/station"
)

// BuildPath expands the tokens of a path template for a station day:
//
//	${NETWORK}  network code
//	${STATION}  station code
//	${YEAR}     four digit year
//	${JDAY}     three digit day of the year
//	${MONTH}    two digit month
//	${DAY}      two digit day of the month
func BuildPath(template string, st station.Station, day time.Time) string {
	day = day.UTC()

	r := strings.NewReplacer(
		"${NETWORK}", st.Network,
		"${STATION}", st.Name,
		"${YEAR}", fmt.Sprintf("%04d", day.Year()),
		"${JDAY}", fmt.Sprintf("%03d", day.YearDay()),
		"${MONTH}", fmt.Sprintf("%02d", int(day.Month())),
		"${DAY}", fmt.Sprintf("%02d", day.Day()),
	)
	return r.Replace(template)
}
