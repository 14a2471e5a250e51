// Package advice turns a weather report into rule-based plant care advice.
package advice

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

const (
	HeatThreshold     = 30.0
	FrostThreshold    = 5.0
	DryAirThreshold   = 30.0
	RainChanceTrigger = 50.0
)

// Current holds the observed conditions. Absent readings trigger no rule.
type Current struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
}

type Forecast struct {
	RainChance float64 `json:"rain_chance"`
}

type Weather struct {
	Current  *Current   `json:"current"`
	Forecast []Forecast `json:"forecast"`
}

// Request is the body of a care advice request. Pots is accepted for
// forward compatibility and currently unused.
type Request struct {
	Weather *Weather          `json:"weather"`
	Pots    []json.RawMessage `json:"pots,omitempty"`
}

type Item struct {
	Type      string   `json:"type"`
	Advice    string   `json:"advice"`
	Priority  Priority `json:"priority"`
	Condition string   `json:"condition"`
}

type season struct {
	name   string
	advice string
}

func seasonFor(month time.Month) season {
	switch {
	case month >= time.March && month <= time.May:
		return season{"spring", "Spring is the growing season, a good time to repot and fertilize"}
	case month >= time.June && month <= time.August:
		return season{"summer", "Summer heat: provide shade and water more often"}
	case month >= time.September && month <= time.November:
		return season{"autumn", "Gradually reduce fertilizing and prepare plants for winter"}
	default:
		return season{"winter", "Winter dormancy: water sparingly and keep plants warm"}
	}
}

func formatReading(v float64) string {
	return fmt.Sprintf("%g", v)
}

// Advise applies the care rules to w. The month of now selects the seasonal
// advice. Items are ordered high priority first; equal priorities keep rule
// order.
func Advise(w *Weather, now time.Time) ([]Item, error) {
	if w == nil || w.Current == nil {
		return nil, apperr.Validationf("missing weather data")
	}

	items := []Item{}
	if t := w.Current.Temp; t != nil {
		switch {
		case *t > HeatThreshold:
			items = append(items, Item{
				Type:      "temperature",
				Advice:    "High temperature: shade your plants and water more often",
				Priority:  PriorityHigh,
				Condition: "Current temperature: " + formatReading(*t) + "°C",
			})
		case *t < FrostThreshold:
			items = append(items, Item{
				Type:      "temperature",
				Advice:    "Frost warning: move tender plants indoors and water less",
				Priority:  PriorityHigh,
				Condition: "Current temperature: " + formatReading(*t) + "°C",
			})
		}
	}

	if h := w.Current.Humidity; h != nil && *h < DryAirThreshold {
		items = append(items, Item{
			Type:      "humidity",
			Advice:    "Dry air: mist humidity-loving plants",
			Priority:  PriorityMedium,
			Condition: "Current humidity: " + formatReading(*h) + "%",
		})
	}

	var rain float64
	if len(w.Forecast) > 0 {
		rain = w.Forecast[0].RainChance
	}
	if rain > RainChanceTrigger {
		items = append(items, Item{
			Type:      "rainfall",
			Advice:    "Rain is likely: consider skipping scheduled watering",
			Priority:  PriorityMedium,
			Condition: "Chance of rain: " + formatReading(rain) + "%",
		})
	}

	s := seasonFor(now.Month())
	items = append(items, Item{
		Type:      "seasonal",
		Advice:    s.advice,
		Priority:  PriorityMedium,
		Condition: "Current season: " + s.name,
	})

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority.rank() > items[j].Priority.rank()
	})
	return items, nil
}
