package assignment

import "context"

type RejectReason string

const (
	TooShort RejectReason = "TOO_SHORT"
	TooLong  RejectReason = "TOO_LONG"
	OffTopic RejectReason = "OFF_TOPIC"
)

// Rejection is an expected, user-facing verdict, not an error.
type Rejection struct {
	Reason RejectReason
}

// RelevanceChecker is the external judgment of whether a text addresses
// the assigned topic. Satisfied by the AI client.
type RelevanceChecker interface {
	IsRelevant(ctx context.Context, text, topic string) (bool, error)
}

type Validator struct {
	minLength int
	maxLength int
	checker   RelevanceChecker
}

func NewValidator(minLength, maxLength int, checker RelevanceChecker) *Validator {
	return &Validator{
		minLength: minLength,
		maxLength: maxLength,
		checker:   checker,
	}
}

func (v *Validator) MinLength() int { return v.minLength }
func (v *Validator) MaxLength() int { return v.maxLength }

// Validate runs the submission checks in order, stopping at the first
// failure. Only the relevance check leaves the process; its failure is
// returned as an error, never folded into a verdict.
func (v *Validator) Validate(ctx context.Context, text, topic string) (*Rejection, error) {
	length := len([]rune(text))
	if length < v.minLength {
		return &Rejection{Reason: TooShort}, nil
	}
	if length > v.maxLength {
		return &Rejection{Reason: TooLong}, nil
	}

	relevant, err := v.checker.IsRelevant(ctx, text, topic)
	if err != nil {
		return nil, err
	}
	if !relevant {
		return &Rejection{Reason: OffTopic}, nil
	}
	return nil, nil
}
