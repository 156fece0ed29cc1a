package tokenizer

// Tokenizer maps text to token ids and back.
//
// Encode never adds BOS/EOS on its own: prompt templates write those markers
// as literal text and the special-token literals are recognised in place.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	// LookupSpecialToken returns the id of a special token by its literal name.
	LookupSpecialToken(name string) (int, bool)
}

// EOSReporter is implemented by tokenizers that declare an end-of-sequence id.
type EOSReporter interface {
	EOSID() int
}
