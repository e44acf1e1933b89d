package dialogue

import (
	"errors"
	"strings"
)

var ErrUnknownScript = errors.New("no catalog script with that label")

// Entry is a catalog script as typed by its author.
type Entry struct {
	Label  string `json:"label"`
	Script string `json:"script"`
}

// Catalog is the built-in set of scripts offered next to free-form entry.
var Catalog = []Entry{
	{
		Label: "Greeting",
		Script: "Hi there, welcome!\n" +
			"I'm your interactive assistant for today.\n" +
			"Ask me anything whenever you're ready.",
	},
	{
		Label: "Product tour",
		Script: "Let me walk you through the main features.\n" +
			"First, you can talk to me with your voice or by typing.\n" +
			"Second, I can read any script you paste in the box below.\n" +
			"Finally, press stop whenever you want to end the session.",
	},
	{
		Label: "Farewell",
		Script: "Thanks for spending time with me.\n" +
			"Have a wonderful day!",
	},
}

// Find returns the catalog entry with the given label, ignoring case.
func Find(label string) (Entry, bool) {
	label = strings.TrimSpace(label)
	for _, e := range Catalog {
		if strings.EqualFold(e.Label, label) {
			return e, true
		}
	}
	return Entry{}, false
}
