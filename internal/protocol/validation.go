package protocol

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	MinUsernameLength   = 1
	MaxUsernameLength   = 32
	MinLobbyNameLength  = 1
	MaxLobbyNameLength  = 64
	LobbyCodeLength     = 6
	MaxWeaponNameLength = 64
)

// NormalizeName trims surrounding whitespace and applies NFC so that visually
// identical names compare and measure the same way.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// IsUsernameLengthValid measures the normalized username in runes.
func IsUsernameLengthValid(username string) bool {
	n := utf8.RuneCountInString(NormalizeName(username))
	return n >= MinUsernameLength && n <= MaxUsernameLength
}

// IsLobbyNameLengthValid measures the normalized lobby name in runes.
func IsLobbyNameLengthValid(name string) bool {
	n := utf8.RuneCountInString(NormalizeName(name))
	return n >= MinLobbyNameLength && n <= MaxLobbyNameLength
}

// NormalizeLobbyCode upper-cases a lobby code typed by a human.
func NormalizeLobbyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ContainsNull reports whether any rule value is JSON null.
func ContainsNull(rules map[string]interface{}) bool {
	for _, v := range rules {
		if v == nil {
			return true
		}
	}
	return false
}
