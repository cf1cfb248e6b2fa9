package block

// Alphabet identifies which of the four character tables a network's
// string data is encoded with. The AI block names it per network;
// Decode takes it as a parameter rather than keeping a package-wide
// current alphabet (spec.md §9, "Alphabet dispatch in C7").
type Alphabet uint8

const (
	AlphabetLatin1   Alphabet = 0
	AlphabetLatin2   Alphabet = 1
	AlphabetCyrillic Alphabet = 2
	AlphabetGreek    Alphabet = 3
)

// alphabetTables maps a high (parity-stripped) byte value 0xA0-0xFF to
// its Unicode rune for each table; bytes below 0xA0 are common
// 7-bit-ASCII-compatible punctuation and digits across all four and
// are passed through unchanged by decodeString.
var alphabetTables = map[Alphabet][96]rune{
	AlphabetLatin1:   buildLatin1Upper(),
	AlphabetLatin2:   buildLatin2Upper(),
	AlphabetCyrillic: buildCyrillicUpper(),
	AlphabetGreek:    buildGreekUpper(),
}

func buildLatin1Upper() [96]rune {
	var t [96]rune
	for i := range t {
		t[i] = rune(0xA0 + i) // identity: teletext Latin table tracks ISO-8859-1 here
	}
	return t
}

func buildLatin2Upper() [96]rune {
	var t [96]rune
	for i := range t {
		t[i] = rune(0xA0 + i) // identity, the same table as Latin-1: ISO-8859-2 code points are not mapped
	}
	return t
}

func buildCyrillicUpper() [96]rune {
	var t [96]rune
	// 0xA0 maps to U+0410 (CYRILLIC CAPITAL A); the teletext Cyrillic
	// table is contiguous with the Unicode Cyrillic block at this offset
	// for the basic alphabet range used by network/programme names.
	for i := range t {
		t[i] = rune(0x0410 + i)
	}
	return t
}

func buildGreekUpper() [96]rune {
	var t [96]rune
	for i := range t {
		t[i] = rune(0x0391 + i) // GREEK CAPITAL ALPHA
	}
	return t
}

// DecodeString decodes a byte slice already parity-decoded by
// vbi.UnHamParityArray into a Go string under the given alphabet.
// Bytes below 0xA0 are treated as Latin-1/ASCII in all four tables.
func DecodeString(data []byte, alpha Alphabet) string {
	table, ok := alphabetTables[alpha]
	if !ok {
		table = alphabetTables[AlphabetLatin1]
	}
	out := make([]rune, 0, len(data))
	for _, b := range data {
		if b < 0xA0 {
			out = append(out, rune(b))
			continue
		}
		out = append(out, table[b-0xA0])
	}
	return string(out)
}
