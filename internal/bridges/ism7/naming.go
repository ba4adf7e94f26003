package ism7

import (
	"regexp"
	"strings"
)

// umlautReplacer transliterates German characters to ASCII.
var umlautReplacer = strings.NewReplacer(
	"ä", "ae",
	"ö", "oe",
	"ü", "ue",
	"Ä", "Ae",
	"Ö", "Oe",
	"Ü", "Ue",
	"ß", "ss",
	" ", "_",
)

// unsafeChars matches everything that may not appear in a topic segment
// or discovery identifier.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_ ]+`)

// Launder turns a display name into an identifier usable in MQTT topics
// and Home Assistant unique IDs.
//
// Example: "Warmwassertemperatur Größe" -> "Warmwassertemperatur_Groesse"
func Launder(name string) string {
	return unsafeChars.ReplaceAllString(umlautReplacer.Replace(name), "")
}

// topicName launders a parameter name for use as a state topic segment.
// A name equal to the set segment would fall inside the device's own set
// subscription, so it gets a trailing underscore.
func topicName(name string) string {
	n := Launder(name)
	if n == setSegment {
		n += "_"
	}
	return n
}
