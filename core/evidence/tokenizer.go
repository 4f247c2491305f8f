package evidence

import (
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/siherrmann/graphrag/helper"
)

// charsPerToken is the coarse estimate used without a tokenizer
const charsPerToken = 4

// Tokenizer counts the tokens of a text
type Tokenizer interface {
	Count(text string) int
	Name() string
}

// CharTokenizer estimates one token per four characters
type CharTokenizer struct{}

func (CharTokenizer) Count(text string) int {
	return (utf8.RuneCountInString(text) + charsPerToken - 1) / charsPerToken
}

func (CharTokenizer) Name() string {
	return "chars/4"
}

// TiktokenTokenizer counts with the BPE encoding of an OpenAI model. The
// encoding is loaded on first use; if it cannot be loaded every count falls
// back to CharTokenizer.
type TiktokenTokenizer struct {
	model    string
	encoding string
	logger   *slog.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenTokenizer creates a tokenizer for model. Unknown models use
// the cl100k_base encoding.
func NewTiktokenTokenizer(model string, logger *slog.Logger) *TiktokenTokenizer {
	if logger == nil {
		logger = helper.DiscardLogger()
	}
	encoding, ok := tiktoken.MODEL_TO_ENCODING[model]
	if !ok {
		encoding = tiktoken.MODEL_CL100K_BASE
	}
	return &TiktokenTokenizer{
		model:    model,
		encoding: encoding,
		logger:   logger,
	}
}

func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = helper.NewError(fmt.Sprintf("load tiktoken encoding %s", t.encoding), err)
			t.logger.Warn("Tokenizer unavailable, counting four characters per token", slog.String("model", t.model), slog.String("error", t.initErr.Error()))
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Available reports whether the encoding could be loaded
func (t *TiktokenTokenizer) Available() bool {
	return t.init() == nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	if err := t.init(); err != nil {
		return CharTokenizer{}.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TiktokenTokenizer) Name() string {
	if t.init() != nil {
		return CharTokenizer{}.Name()
	}
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
