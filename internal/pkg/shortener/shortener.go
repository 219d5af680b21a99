package shortener

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Alphabet für die Umwandlung (62 Zeichen: 0-9, a-z, A-Z)
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// hashedPrefix contains a character outside the alphabet, so hashed ids never
// collide with the numeric form.
const (
	sequentialPrefix = "Q"
	hashedPrefix     = "Q-"
)

// SequentialID derives the human readable support reference of a question from its
// marketplace id. Numeric ids map one to one; anything else is hashed.
func SequentialID(mlQuestionID string) string {
	if n, err := strconv.ParseUint(mlQuestionID, 10, 64); err == nil {
		return sequentialPrefix + EncodeID(n)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(mlQuestionID))
	return hashedPrefix + EncodeID(h.Sum64())
}

// EncodeID wandelt eine numerische ID in einen kurzen alphanumerischen String um
func EncodeID(id uint64) string {
	if id == 0 {
		return string(alphabet[0])
	}

	base := uint64(len(alphabet))
	encoded := strings.Builder{}

	for id > 0 {
		encoded.WriteByte(alphabet[id%base])
		id = id / base
	}

	// Umkehren des Strings, da wir von rechts nach links gearbeitet haben
	str := encoded.String()
	reversed := make([]byte, len(str))
	for i := 0; i < len(str); i++ {
		reversed[len(str)-1-i] = str[i]
	}

	return string(reversed)
}

// DecodeID wandelt einen alphanumerischen String zurück in eine ID
func DecodeID(encoded string) uint64 {
	base := uint64(len(alphabet))
	var id uint64

	for i := 0; i < len(encoded); i++ {
		value := strings.IndexByte(alphabet, encoded[i])
		if value == -1 {
			continue
		}
		id = id*base + uint64(value)
	}

	return id
}
