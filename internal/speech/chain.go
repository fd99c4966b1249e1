package speech

import (
	"context"
	"errors"
)

// Chain speaks through the first synthesizer that supports the host. A
// synthesizer answering ErrUnsupported hands the text to the next one; any
// other error is returned as is.
type Chain []Synthesizer

func (c Chain) Speak(ctx context.Context, text, lang string) error {
	for _, s := range c {
		if s == nil {
			continue
		}
		err := s.Speak(ctx, text, lang)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		return err
	}
	return ErrUnsupported
}
