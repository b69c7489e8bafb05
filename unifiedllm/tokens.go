package unifiedllm

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func defaultCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("cl100k_base unavailable, estimating tokens from length")
			return
		}
		codec = c
	})
	return codec
}

// CountTokens returns the number of cl100k_base tokens in text, or an
// estimate of four characters per token if the text cannot be encoded.
// Providers tokenize differently, so treat the result as an approximation.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if c := defaultCodec(); c != nil {
		if ids, _, err := c.Encode(text); err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}
