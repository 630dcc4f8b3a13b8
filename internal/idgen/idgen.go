// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the four record kinds.
const (
	SessionPrefix  = "ts-"
	BreakPrefix    = "br-"
	ActivityPrefix = "au-"
	AnalysisPrefix = "an-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// Session returns a new session ID.
func Session() (string, error) { return GenerateWithPrefix(SessionPrefix) }

// Break returns a new break ID.
func Break() (string, error) { return GenerateWithPrefix(BreakPrefix) }

// Activity returns a new activity unit ID.
func Activity() (string, error) { return GenerateWithPrefix(ActivityPrefix) }

// Analysis returns a new analysis record ID.
func Analysis() (string, error) { return GenerateWithPrefix(AnalysisPrefix) }

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
