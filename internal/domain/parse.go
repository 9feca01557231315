package domain

import (
	"errors"
	"math/big"
	"strconv"
	"strings"
)

// FlagPrefix introduces a named argument slot.
const FlagPrefix = '-'

var (
	ErrNotANumber = errors.New("not a whole number")
	ErrNegative   = errors.New("must not be negative")
)

// Args maps a flag name (prefix stripped) to the values that followed it.
type Args map[string][]string

// ParseArgs groups tokens under the most recent flag. A token is a flag when it
// is at least two characters long and starts with '-'. Values before the first
// flag are dropped; a repeated flag keeps appending to the same slot.
func ParseArgs(tokens []string) Args {
	res := Args{}
	current := ""
	seen := false
	for _, tok := range tokens {
		if len(tok) >= 2 && tok[0] == FlagPrefix {
			current = tok[1:]
			seen = true
			if _, ok := res[current]; !ok {
				res[current] = []string{}
			}
			continue
		}
		if seen {
			res[current] = append(res[current], tok)
		}
	}
	return res
}

// Has reports whether flag was present, with or without values.
func (a Args) Has(flag string) bool {
	_, ok := a[flag]
	return ok
}

// Join returns the values of flag separated by single spaces.
func (a Args) Join(flag string) string {
	return strings.Join(a[flag], " ")
}

// IsFlag reports whether tok would be treated as a flag by ParseArgs.
func IsFlag(tok string) bool {
	return len(tok) >= 2 && tok[0] == FlagPrefix
}

// Positionals returns the leading tokens before the first flag.
func Positionals(tokens []string) []string {
	for i, tok := range tokens {
		if IsFlag(tok) {
			return tokens[:i]
		}
	}
	return tokens
}

// SplitCommand splits text on whitespace into a keyword and its raw arguments.
// keyword is empty when text has no tokens.
func SplitCommand(text string) (keyword string, args []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// ParseXP parses a non-negative decimal integer of any size.
func ParseXP(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, ErrNotANumber
	}
	if n.Sign() < 0 {
		return nil, ErrNegative
	}
	return n, nil
}

// ParseLevel parses a level number; levels start at 1.
func ParseLevel(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, ErrNotANumber
	}
	if n < 1 {
		return 0, errors.New("level must be at least 1")
	}
	return n, nil
}
