package rounds

import "strings"

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ParseLetter upper-cases s and reports whether it is exactly one A-Z letter.
func ParseLetter(s string) (string, bool) {
	l := strings.ToUpper(strings.TrimSpace(s))
	if len(l) != 1 || !strings.Contains(alphabet, l) {
		return "", false
	}
	return l, true
}

// unusedLetters returns the alphabet minus used, or the whole alphabet once
// every letter has been played.
func unusedLetters(used []string) []byte {
	seen := make(map[byte]bool, len(used))
	for _, u := range used {
		if l, ok := ParseLetter(u); ok {
			seen[l[0]] = true
		}
	}
	free := make([]byte, 0, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		if !seen[alphabet[i]] {
			free = append(free, alphabet[i])
		}
	}
	if len(free) == 0 {
		return []byte(alphabet)
	}
	return free
}

// PickLetter chooses a random letter not yet played in the game.
func PickLetter(used []string, intn func(int) int) string {
	free := unusedLetters(used)
	return string(free[intn(len(free))])
}

func letterAvailable(letter string, used []string) bool {
	return strings.Contains(string(unusedLetters(used)), letter)
}
