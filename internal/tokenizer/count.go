package tokenizer

import "errors"

// CountResult captures the outcome of counting decoded text.
type CountResult struct {
	Tokens  int
	Counted bool
}

// CountString estimates tokens for already decoded text.
func CountString(counter Counter, text string) (CountResult, error) {
	if counter == nil {
		return CountResult{}, errors.New("nil tokenizer counter")
	}
	tokens, err := counter.CountString(text)
	if err != nil {
		return CountResult{}, err
	}
	return CountResult{Tokens: tokens, Counted: true}, nil
}
