package segmenter

import (
	"errors"
	"fmt"
)

const (
	// DefaultMaxChunkSize stays a bit below the 4096 characters telegram accepts
	DefaultMaxChunkSize = 4090
	DefaultMaxLookback  = 2048
	DefaultMinTailSize  = 512
)

var ErrInvalidArgument = errors.New("invalid argument")

// Chunk is a part of a message, Start and End are rune offsets, End is exclusive
type Chunk struct {
	Text  string
	Start int
	End   int
}

// Segmenter splits long messages into chunks of at most MaxChunkSize runes.
// A chunk preferably ends at a newline, then at a space, searching back at most
// MaxLookback runes and never leaving less than MinTailSize runes in the chunk.
// Break characters stay in the chunk they end.
type Segmenter struct {
	MaxChunkSize int
	MaxLookback  int
	MinTailSize  int
}

func Default() Segmenter {
	return Segmenter{
		MaxChunkSize: DefaultMaxChunkSize,
		MaxLookback:  DefaultMaxLookback,
		MinTailSize:  DefaultMinTailSize,
	}
}

// Split is a shortcut for Segmenter.Split
func Split(message string, maxChunkSize, maxLookback, minTailSize int) ([]Chunk, error) {
	s := Segmenter{
		MaxChunkSize: maxChunkSize,
		MaxLookback:  maxLookback,
		MinTailSize:  minTailSize,
	}
	return s.Split(message)
}

func (s Segmenter) Split(message string) ([]Chunk, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	text := []rune(message)
	if len(text) == 0 {
		return nil, nil
	}

	chunks := make([]Chunk, 0, len(text)/s.MaxChunkSize+1)

	start := 0
	for start < len(text) {
		end := min(start+s.MaxChunkSize, len(text)) - 1

		if start+s.MaxChunkSize < len(text) {
			window := min(s.MaxLookback, end-start-s.MinTailSize)

			brk := lookBack(text, '\n', end, window)
			if brk < 0 {
				brk = lookBack(text, ' ', end, window)
			}
			if brk > start {
				end = brk
			}
		}

		chunks = append(chunks, Chunk{
			Text:  string(text[start : end+1]),
			Start: start,
			End:   end + 1,
		})
		start = end + 1
	}

	return chunks, nil
}

func (s Segmenter) validate() error {
	if s.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: max chunk size must be positive, got %d", ErrInvalidArgument, s.MaxChunkSize)
	}
	if s.MaxLookback < 0 {
		return fmt.Errorf("%w: max lookback must not be negative, got %d", ErrInvalidArgument, s.MaxLookback)
	}
	if s.MinTailSize < 0 {
		return fmt.Errorf("%w: min tail size must not be negative, got %d", ErrInvalidArgument, s.MinTailSize)
	}
	return nil
}

// lookBack returns index of c scanning back from offset over at most window
// runes, or -1 if there is none
func lookBack(text []rune, c rune, offset, window int) int {
	for i := 0; i < window && offset-i >= 0; i++ {
		if text[offset-i] == c {
			return offset - i
		}
	}
	return -1
}
