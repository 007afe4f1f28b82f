package present

import (
	"errors"
	"strings"

	"multicab_router/pkg/routing"
)

// Card is the rider-facing description of a recommendation.
type Card struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// Describe renders rec as a route card.
func Describe(rec routing.Recommendation) Card {
	c := Card{Title: "Recommended Route: " + rec.ChosenRoute().Label()}
	switch rec := rec.(type) {
	case routing.Direct:
		c.Lines = append(c.Lines, "You can catch the multicab near your location.")
		if len(rec.Alternates) > 0 {
			names := make([]string, len(rec.Alternates))
			for i, alt := range rec.Alternates {
				names[i] = alt.Route.Label()
			}
			c.Lines = append(c.Lines, "Other possible routes: "+strings.Join(names, ", "))
		}
	case routing.WalkToPickup:
		c.Lines = append(c.Lines, "Go to the marked pickup point to catch the multicab.")
	}
	return c
}

// ErrorMessage returns the text shown to a rider for a recommendation error,
// or "" when the error has no rider-facing meaning.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, routing.ErrNoStartPoint):
		return "Please set your start point."
	case errors.Is(err, ErrNoDestination):
		return "Please set your destination."
	case errors.Is(err, routing.ErrNoRoutesAvailable):
		return "No routes are available right now."
	default:
		return ""
	}
}
