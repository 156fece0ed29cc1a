package llamacpp

import (
	"context"
	"sync"
)

// Tokenizer uses the server's /tokenize and /detokenize endpoints so that
// ids always agree with the loaded model.
type Tokenizer struct {
	c *Client

	mu       sync.Mutex
	pieces   map[int]string
	specials map[string]specialEntry
}

type specialEntry struct {
	id int
	ok bool
}

func (c *Client) Tokenizer() *Tokenizer {
	return &Tokenizer{
		c:        c,
		pieces:   make(map[int]string),
		specials: make(map[string]specialEntry),
	}
}

func (t *Tokenizer) tokenize(text string, parseSpecial bool) ([]int, error) {
	var out struct {
		Tokens []int `json:"tokens"`
	}
	in := map[string]any{
		"content":       text,
		"add_special":   false,
		"parse_special": parseSpecial,
	}
	if err := t.c.post(context.Background(), "/tokenize", in, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

// Encode recognises special-token literals in text.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	return t.tokenize(text, true)
}

// Decode caches single-id lookups, which dominate streaming.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	if len(ids) == 1 {
		t.mu.Lock()
		piece, ok := t.pieces[ids[0]]
		t.mu.Unlock()
		if ok {
			return piece, nil
		}
	}
	var out struct {
		Content string `json:"content"`
	}
	if err := t.c.post(context.Background(), "/detokenize", map[string]any{"tokens": ids}, &out); err != nil {
		return "", err
	}
	if len(ids) == 1 {
		t.mu.Lock()
		t.pieces[ids[0]] = out.Content
		t.mu.Unlock()
	}
	return out.Content, nil
}

// LookupSpecialToken treats name as special when it parses to one id with
// special parsing on and splits into plain text with it off.
func (t *Tokenizer) LookupSpecialToken(name string) (int, bool) {
	t.mu.Lock()
	e, cached := t.specials[name]
	t.mu.Unlock()
	if cached {
		return e.id, e.ok
	}

	e = specialEntry{}
	if ids, err := t.tokenize(name, true); err == nil && len(ids) == 1 {
		if plain, err := t.tokenize(name, false); err == nil && len(plain) > 1 {
			e = specialEntry{id: ids[0], ok: true}
		}
	}
	t.mu.Lock()
	t.specials[name] = e
	t.mu.Unlock()
	return e.id, e.ok
}
