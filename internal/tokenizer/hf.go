package tokenizer

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// metaspace replaces spaces in SentencePiece-derived vocabularies.
const metaspace = "▁"

// HFTokenizer is a BPE tokenizer loaded from a Hugging Face tokenizer.json.
// It supports byte-level vocabularies (GPT-2, Llama-3, Qwen) and metaspace
// vocabularies with byte fallback (Llama-2).
type HFTokenizer struct {
	encoder      map[string]int
	decoder      []string
	bpeRanks     map[symbolPair]int
	byteEncoder  [256]string
	byteDecoder  map[rune]byte
	pattern      *regexp.Regexp
	byteLevel    bool
	byteFallback bool
	eosID        int
	unkID        int
	ignoreMerges bool
	specials     map[string]int
	specialList  []string

	// Sessions share one tokenizer, so the merge cache is guarded.
	cacheMu sync.Mutex
	cache   map[string][]string
}

type hfTokenizerJSON struct {
	Model struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"`
		IgnoreMerges bool           `json:"ignore_merges"`
		ByteFallback bool           `json:"byte_fallback"`
		UnkToken     string         `json:"unk_token"`
	} `json:"model"`
	Normalizer   *hfComponent `json:"normalizer"`
	PreTokenizer *hfComponent `json:"pre_tokenizer"`
	AddedTokens  []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

// hfComponent covers the normalizer and pre_tokenizer shapes we inspect.
type hfComponent struct {
	Type          string        `json:"type"`
	Normalizers   []hfComponent `json:"normalizers"`
	Pretokenizers []hfComponent `json:"pretokenizers"`
	Pattern       struct {
		Regex  string `json:"Regex"`
		String string `json:"String"`
	} `json:"pattern"`
	Content string `json:"content"`
}

type hfTokenizerConfig struct {
	EOS any `json:"eos_token"`
}

// LoadHFTokenizer reads tokenizer.json and an optional tokenizer_config.json.
func LoadHFTokenizer(tokJSON, tokConfig string) (*HFTokenizer, error) {
	data, err := os.ReadFile(tokJSON)
	if err != nil {
		return nil, err
	}
	var cfg []byte
	if tokConfig != "" {
		if raw, err := os.ReadFile(tokConfig); err == nil {
			cfg = raw
		}
	}
	return LoadHFTokenizerBytes(data, cfg)
}

// LoadHFTokenizerBytes builds a tokenizer from raw tokenizer.json and
// tokenizer_config.json contents. tokConfig may be nil.
func LoadHFTokenizerBytes(tokJSON []byte, tokConfig []byte) (*HFTokenizer, error) {
	var tj hfTokenizerJSON
	if err := json.Unmarshal(tokJSON, &tj); err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if strings.ToUpper(tj.Model.Type) != "BPE" {
		return nil, fmt.Errorf("unsupported tokenizer model: %s", tj.Model.Type)
	}

	encoder := make(map[string]int, len(tj.Model.Vocab)+len(tj.AddedTokens))
	maxID := -1
	for tok, id := range tj.Model.Vocab {
		encoder[tok] = id
		maxID = max(maxID, id)
	}
	specials := make(map[string]int)
	for _, at := range tj.AddedTokens {
		encoder[at.Content] = at.ID
		maxID = max(maxID, at.ID)
		if at.Special || looksSpecial(at.Content) {
			specials[at.Content] = at.ID
		}
	}
	decoder := make([]string, maxID+1)
	for tok, id := range encoder {
		decoder[id] = tok
	}

	tok := &HFTokenizer{
		encoder:      encoder,
		decoder:      decoder,
		bpeRanks:     parseMerges(tj.Model.Merges),
		cache:        make(map[string][]string),
		byteLevel:    !usesMetaspace(tj),
		byteFallback: tj.Model.ByteFallback,
		eosID:        -1,
		unkID:        -1,
		ignoreMerges: tj.Model.IgnoreMerges,
		specials:     specials,
		specialList:  sortSpecials(specials),
	}
	if tok.byteLevel {
		tok.byteEncoder, tok.byteDecoder = byteLevelAlphabet()
		tok.pattern = buildHFPattern(tj.PreTokenizer)
	}
	if tj.Model.UnkToken != "" {
		if id, ok := encoder[tj.Model.UnkToken]; ok {
			tok.unkID = id
		}
	}

	if len(tokConfig) > 0 {
		var cfg hfTokenizerConfig
		if err := json.Unmarshal(tokConfig, &cfg); err != nil {
			return nil, fmt.Errorf("parse tokenizer_config.json: %w", err)
		}
		if name := addedTokenContent(cfg.EOS); name != "" {
			if id, ok := encoder[name]; ok {
				tok.eosID = id
			}
		}
	}
	return tok, nil
}

// Encode splits out special-token literals, then runs BPE over the rest.
func (t *HFTokenizer) Encode(text string) ([]int, error) {
	var ids []int
	for _, seg := range segmentSpecials(text, t.specialList) {
		if seg.special {
			ids = append(ids, t.specials[seg.text])
			continue
		}
		var err error
		if t.byteLevel {
			ids, err = t.encodeByteLevel(ids, seg.text)
		} else {
			ids, err = t.encodeMetaspace(ids, seg.text)
		}
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (t *HFTokenizer) encodeByteLevel(ids []int, text string) ([]int, error) {
	for _, piece := range t.pattern.FindAllString(text, -1) {
		for _, bpeTok := range t.bpe(t.byteEncode(piece)) {
			id, ok := t.encoder[bpeTok]
			if !ok {
				if t.unkID >= 0 {
					ids = append(ids, t.unkID)
					continue
				}
				return nil, fmt.Errorf("unknown token: %q", bpeTok)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *HFTokenizer) encodeMetaspace(ids []int, text string) ([]int, error) {
	if text == "" {
		return ids, nil
	}
	word := metaspace + strings.ReplaceAll(text, " ", metaspace)
	for _, sym := range t.bpe(word) {
		if id, ok := t.encoder[sym]; ok {
			ids = append(ids, id)
			continue
		}
		if t.byteFallback {
			for _, by := range []byte(sym) {
				id, ok := t.encoder[fmt.Sprintf("<0x%02X>", by)]
				if !ok {
					return nil, fmt.Errorf("missing byte fallback token for 0x%02X", by)
				}
				ids = append(ids, id)
			}
			continue
		}
		if t.unkID >= 0 {
			ids = append(ids, t.unkID)
			continue
		}
		return nil, fmt.Errorf("unknown token: %q", sym)
	}
	return ids, nil
}

// Decode maps ids back to text. Special tokens decode to their literal form.
// Metaspace vocabularies keep the leading space of a word so single-token
// decodes concatenate correctly.
func (t *HFTokenizer) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) || t.decoder[id] == "" {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		token := t.decoder[id]
		if _, ok := t.specials[token]; ok {
			b = append(b, token...)
			continue
		}
		if !t.byteLevel {
			if by, ok := parseByteToken(token); ok {
				b = append(b, by)
				continue
			}
			b = append(b, strings.ReplaceAll(token, metaspace, " ")...)
			continue
		}
		for _, r := range token {
			if by, ok := t.byteDecoder[r]; ok {
				b = append(b, by)
			} else {
				b = append(b, string(r)...)
			}
		}
	}
	return string(b), nil
}

// LookupSpecialToken returns the id of an added special token.
func (t *HFTokenizer) LookupSpecialToken(name string) (int, bool) {
	id, ok := t.specials[name]
	return id, ok
}

// EOSID returns the end-of-sequence id declared by tokenizer_config.json, or -1.
func (t *HFTokenizer) EOSID() int { return t.eosID }

// TokenString returns the vocabulary entry for id.
func (t *HFTokenizer) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

// VocabSize returns the number of addressable ids.
func (t *HFTokenizer) VocabSize() int { return len(t.decoder) }

func (t *HFTokenizer) byteEncode(s string) string {
	var b strings.Builder
	for _, by := range []byte(s) {
		b.WriteString(t.byteEncoder[by])
	}
	return b.String()
}

func (t *HFTokenizer) bpe(token string) []string {
	t.cacheMu.Lock()
	cached, ok := t.cache[token]
	t.cacheMu.Unlock()
	if ok {
		return cached
	}

	var out []string
	if _, whole := t.encoder[token]; whole && t.ignoreMerges {
		out = []string{token}
	} else {
		out = bpeMerge(runeSymbols(token), t.bpeRanks)
	}

	t.cacheMu.Lock()
	t.cache[token] = out
	t.cacheMu.Unlock()
	return out
}

func parseMerges(raw []any) map[symbolPair]int {
	ranks := make(map[symbolPair]int, len(raw))
	rank := 0
	for _, item := range raw {
		line := ""
		switch v := item.(type) {
		case string:
			line = v
		case []any:
			if len(v) == 2 {
				a, aok := v[0].(string)
				b, bok := v[1].(string)
				if aok && bok {
					line = a + " " + b
				}
			}
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, " ")
		if len(parts) != 2 {
			continue
		}
		p := symbolPair{parts[0], parts[1]}
		if _, ok := ranks[p]; !ok {
			ranks[p] = rank
			rank++
		}
	}
	return ranks
}

func usesMetaspace(tj hfTokenizerJSON) bool {
	if tj.Model.ByteFallback {
		return true
	}
	var walk func(c *hfComponent) bool
	walk = func(c *hfComponent) bool {
		if c == nil {
			return false
		}
		if c.Type == "Metaspace" || c.Content == metaspace || c.Pattern.String == " " {
			return true
		}
		for i := range c.Normalizers {
			if walk(&c.Normalizers[i]) {
				return true
			}
		}
		for i := range c.Pretokenizers {
			if walk(&c.Pretokenizers[i]) {
				return true
			}
		}
		return false
	}
	return walk(tj.Normalizer) || walk(tj.PreTokenizer)
}

func buildHFPattern(pre *hfComponent) *regexp.Regexp {
	// Default to GPT2-ish regex.
	pat := `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`
	if pre != nil && pre.Type == "Sequence" {
		for _, p := range pre.Pretokenizers {
			if p.Type == "Split" && p.Pattern.Regex != "" {
				pat = p.Pattern.Regex
				break
			}
		}
	}
	// Llama-3 style patterns use lookahead, which Go's regexp lacks.
	if strings.Contains(pat, "(?!\\S)") || strings.Contains(pat, "(?i:") {
		pat = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`
	}
	return regexp.MustCompile(pat)
}

func parseByteToken(tok string) (byte, bool) {
	if len(tok) != 6 || !strings.HasPrefix(tok, "<0x") || tok[5] != '>' {
		return 0, false
	}
	v, err := strconv.ParseUint(tok[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

// addedTokenContent accepts both "eos_token": "</s>" and the object form.
func addedTokenContent(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["content"].(string); ok {
			return s
		}
	}
	return ""
}
