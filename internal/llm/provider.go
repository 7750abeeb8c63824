// Package llm generates text with a hosted chat model. Providers do a single
// attempt; Service adds validation, defaults, retries and streaming fragments.
package llm

import "context"

// Provider is one hosted chat-completion backend.
type Provider interface {
	Name() string
	// Complete performs one non-streaming attempt and returns the raw text.
	Complete(ctx context.Context, req Request) (string, error)
	// OpenStream starts one streaming attempt. Errors that happen while the
	// stream is being established must be returned here, not from Next.
	OpenStream(ctx context.Context, req Request) (TokenStream, error)
}

// TokenStream yields text deltas until Next returns io.EOF.
type TokenStream interface {
	Next() (string, error)
	Close() error
}

// FragmentKind tags a streamed fragment.
type FragmentKind int

const (
	FragmentData FragmentKind = iota
	FragmentError
	FragmentEnd
)

func (k FragmentKind) String() string {
	switch k {
	case FragmentData:
		return "data"
	case FragmentError:
		return "error"
	default:
		return "end"
	}
}

// Fragment is one element of a streamed generation. A stream carries zero or
// more Data fragments followed by exactly one Error or End fragment.
type Fragment struct {
	Kind FragmentKind
	Text string
	Err  error
}
