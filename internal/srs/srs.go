// Package srs implements the SM-2 family review scheduler used for flashcards.
package srs

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput is returned when a quality rating or a scheduling state
// falls outside the range the scheduler is defined for.
var ErrInvalidInput = errors.New("invalid input")

// Quality is the learner's self-reported recall quality, from 0 to 5.
// 0-2 count as a failed recall, 3-4 as good and 5 as easy.
type Quality int

const (
	Hard Quality = 0
	Good Quality = 3
	Easy Quality = 5

	MinQuality Quality = 0
	MaxQuality Quality = 5
)

// Valid reports whether q is inside [MinQuality, MaxQuality].
func (q Quality) Valid() bool {
	return q >= MinQuality && q <= MaxQuality
}

// Mode is the logical phase a card is in.
type Mode int

const (
	Learning Mode = iota // repetitions == 0
	Review               // repetitions >= 1
)

func (m Mode) String() string {
	if m == Review {
		return "review"
	}
	return "learning"
}

// MaxInterval is the longest interval, in days, the scheduler produces.
const MaxInterval = math.MaxInt32

// State is the scheduling state of a single card.
type State struct {
	Interval       int       `json:"interval" validate:"gte=1,lte=2147483647"`
	EaseFactor     float64   `json:"ease_factor" validate:"gte=1.3"`
	Repetitions    int       `json:"repetitions" validate:"gte=0"`
	NextReviewDate time.Time `json:"next_review_date"`
}

// Due reports whether the card should be shown on the given day.
func (s State) Due(today time.Time) bool {
	return !Date(s.NextReviewDate).After(Date(today))
}

// Mode returns Learning for a new or freshly reset card, Review otherwise.
func (s State) Mode() Mode {
	if s.Repetitions == 0 {
		return Learning
	}
	return Review
}

// Params holds the constants of the scheduling rule.
type Params struct {
	MinEaseFactor     float64
	InitialEaseFactor float64
	InitialInterval   int // interval after the first successful review
	SecondInterval    int // interval after the second successful review
	PassingQuality    Quality
}

// DefaultParams returns the classic SM-2 constants.
func DefaultParams() *Params {
	return &Params{
		MinEaseFactor:     1.3,
		InitialEaseFactor: 2.5,
		InitialInterval:   1,
		SecondInterval:    6,
		PassingQuality:    Good,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewState returns the state of a card created on the given day.
func (p *Params) NewState(today time.Time) State {
	return State{
		Interval:       p.InitialInterval,
		EaseFactor:     p.InitialEaseFactor,
		Repetitions:    0,
		NextReviewDate: Date(today),
	}
}

// Schedule computes the state that follows a review of quality q on the day today.
// The input state is never modified; on error it is returned as is.
func (p *Params) Schedule(s State, q Quality, today time.Time) (State, error) {
	if !q.Valid() {
		return s, fmt.Errorf("%w: quality %d outside [%d, %d]", ErrInvalidInput, q, MinQuality, MaxQuality)
	}
	if err := validate.Struct(s); err != nil {
		return s, fmt.Errorf("%w: scheduling state: %v", ErrInvalidInput, err)
	}
	if math.IsInf(s.EaseFactor, 0) || s.EaseFactor < p.MinEaseFactor {
		return s, fmt.Errorf("%w: ease factor %.4f below %.2f", ErrInvalidInput, s.EaseFactor, p.MinEaseFactor)
	}

	next := s
	if q < p.PassingQuality {
		next.Repetitions = 0
		next.Interval = p.InitialInterval
	} else {
		next.EaseFactor = p.easeFactor(s.EaseFactor, q)
		switch s.Repetitions {
		case 0:
			next.Interval = p.InitialInterval
		case 1:
			next.Interval = p.SecondInterval
		default:
			// Previous interval times the updated ease factor.
			days := math.RoundToEven(float64(s.Interval) * next.EaseFactor)
			if days > MaxInterval {
				return s, fmt.Errorf("%w: interval %.0f days exceeds %d", ErrInvalidInput, days, MaxInterval)
			}
			next.Interval = int(days)
		}
		next.Repetitions = s.Repetitions + 1
	}
	next.NextReviewDate = Date(today).AddDate(0, 0, next.Interval)
	return next, nil
}

// easeFactor applies EF' = EF + 0.1 - (5-q)(0.08 + (5-q)0.02), floored at MinEaseFactor.
func (p *Params) easeFactor(ef float64, q Quality) float64 {
	d := float64(MaxQuality - q)
	return math.Max(p.MinEaseFactor, ef+0.1-d*(0.08+d*0.02))
}

// NewState returns the initial state using DefaultParams.
func NewState(today time.Time) State {
	return DefaultParams().NewState(today)
}

// Schedule applies a review using DefaultParams.
func Schedule(s State, q Quality, today time.Time) (State, error) {
	return DefaultParams().Schedule(s, q, today)
}

// Date returns the calendar day of t as midnight UTC, so that dates taken
// in different locations compare by day alone.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
