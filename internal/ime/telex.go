package ime

// Tone keys.
const (
	ToneAcute = 's' // sắc
	ToneGrave = 'f' // huyền
	ToneHook  = 'r' // hỏi
	ToneTilde = 'x' // ngã
	ToneDot   = 'j' // nặng
)

// toneTable maps tone key -> base vowel -> toned vowel.
var toneTable = map[rune]map[rune]rune{
	ToneAcute: {
		'a': 'á', 'ă': 'ắ', 'â': 'ấ', 'e': 'é', 'ê': 'ế', 'i': 'í',
		'o': 'ó', 'ô': 'ố', 'ơ': 'ớ', 'u': 'ú', 'ư': 'ứ', 'y': 'ý',
	},
	ToneGrave: {
		'a': 'à', 'ă': 'ằ', 'â': 'ầ', 'e': 'è', 'ê': 'ề', 'i': 'ì',
		'o': 'ò', 'ô': 'ồ', 'ơ': 'ờ', 'u': 'ù', 'ư': 'ừ', 'y': 'ỳ',
	},
	ToneHook: {
		'a': 'ả', 'ă': 'ẳ', 'â': 'ẩ', 'e': 'ẻ', 'ê': 'ể', 'i': 'ỉ',
		'o': 'ỏ', 'ô': 'ổ', 'ơ': 'ở', 'u': 'ủ', 'ư': 'ử', 'y': 'ỷ',
	},
	ToneTilde: {
		'a': 'ã', 'ă': 'ẵ', 'â': 'ẫ', 'e': 'ẽ', 'ê': 'ễ', 'i': 'ĩ',
		'o': 'õ', 'ô': 'ỗ', 'ơ': 'ỡ', 'u': 'ũ', 'ư': 'ữ', 'y': 'ỹ',
	},
	ToneDot: {
		'a': 'ạ', 'ă': 'ặ', 'â': 'ậ', 'e': 'ẹ', 'ê': 'ệ', 'i': 'ị',
		'o': 'ọ', 'ô': 'ộ', 'ơ': 'ợ', 'u': 'ụ', 'ư': 'ự', 'y': 'ỵ',
	},
}

// doubled covers aa, ee, oo and dd.
var doubled = map[rune]rune{
	'a': 'â',
	'e': 'ê',
	'o': 'ô',
	'd': 'đ',
}

// wModified covers aw, ow and uw.
var wModified = map[rune]rune{
	'a': 'ă',
	'o': 'ơ',
	'u': 'ư',
}

// IsToneKey reports whether ch selects a tone.
func IsToneKey(ch rune) bool {
	_, ok := toneTable[ch]
	return ok
}

// pendingEligible reports whether an emitted rune starts a composition.
func pendingEligible(ch rune) bool {
	switch ch {
	case 'a', 'e', 'i', 'o', 'u', 'y', 'd':
		return true
	}
	return false
}

// ApplyTone returns base with the tone selected by key, or false if the
// combination does not exist.
func ApplyTone(base, key rune) (rune, bool) {
	row, ok := toneTable[key]
	if !ok {
		return 0, false
	}
	r, ok := row[base]
	return r, ok
}
