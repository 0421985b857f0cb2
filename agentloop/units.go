package agentloop

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// UnitCounter measures text in budget units.
type UnitCounter interface {
	Count(text string) int
}

// UnitCounterFunc adapts a function to UnitCounter.
type UnitCounterFunc func(string) int

func (f UnitCounterFunc) Count(text string) int { return f(text) }

// RuneCounter counts one unit per rune.
type RuneCounter struct{}

func (RuneCounter) Count(text string) int { return utf8.RuneCountInString(text) }

// ApproxTokenCounter estimates tokens as ceil(bytes/4).
type ApproxTokenCounter struct{}

func (ApproxTokenCounter) Count(text string) int { return (len(text) + 3) / 4 }

// TiktokenCounter counts BPE tokens.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, e.g. "cl100k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// NewTiktokenCounterForModel loads the encoding used by model.
func NewTiktokenCounterForModel(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("load encoding for %s: %w", model, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewUnitCounter builds the counter named by kind: "runes", "approx" or
// "tiktoken". Tiktoken needs its BPE ranks, which may be unavailable
// offline; in that case the approximate counter is returned with the error.
func NewUnitCounter(kind, model string) (UnitCounter, error) {
	switch kind {
	case "", "approx":
		return ApproxTokenCounter{}, nil
	case "runes":
		return RuneCounter{}, nil
	case "tiktoken":
		c, err := NewTiktokenCounterForModel(model)
		if err == nil {
			return c, nil
		}
		c, err = NewTiktokenCounter("cl100k_base")
		if err != nil {
			return ApproxTokenCounter{}, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown unit counter %q", kind)
	}
}
