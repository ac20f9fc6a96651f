package context

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter is an exact BPE-based types.TokenCounter, as opposed to
// the package's len/4+1 heuristic. If the encoding fails to initialize (e.g.
// no network access to fetch encoder data on first use), CountTokens falls
// back to the heuristic rather than erroring, since TokenCounter has no
// error return.
type TiktokenCounter struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a TiktokenCounter for the given tiktoken
// encoding name (e.g. "cl100k_base", "o200k_base"). An empty name defaults
// to "cl100k_base".
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding}
}

func (t *TiktokenCounter) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err == nil {
			t.enc = enc
		}
	})
}

func (t *TiktokenCounter) CountTokens(text string) int {
	t.init()
	if t.enc == nil {
		return defaultTokenCounter.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
