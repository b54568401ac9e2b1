// Package external holds collaborators that sit outside the
// scheduler/block-manager core: here, the tokenizer that turns a raw prompt
// string into token ids for add_request.
package external

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

const encodingName = "cl100k_base"

// Tokenizer turns a raw prompt string into token ids.
type Tokenizer interface {
	Encode(prompt string) ([]int, error)
}

// TiktokenTokenizer is a cl100k_base tokenizer backed by an offline BPE
// loader, so encoding never makes a network call.
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the cl100k_base encoding once; callers reuse
// the returned Tokenizer across requests.
func NewTiktokenTokenizer() (*TiktokenTokenizer, error) {
	tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer encoding %q: %w", encodingName, err)
	}
	return &TiktokenTokenizer{encoding: enc}, nil
}

// Encode tokenizes prompt with no special-token allowance.
func (t *TiktokenTokenizer) Encode(prompt string) ([]int, error) {
	return t.encoding.Encode(prompt, nil, nil), nil
}
