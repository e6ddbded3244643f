package queue

import (
	"fmt"
	"time"
)

// DefaultLength is the buffer capacity used when none is configured.
const DefaultLength = 8

// Overflow selects what Push does when the buffer is full.
type Overflow string

const (
	// OverflowDiscard drops the incoming task.
	OverflowDiscard Overflow = "discard"
	// OverflowOverlap replaces the tail task with the incoming one.
	OverflowOverlap Overflow = "overlap"
	// OverflowSlide drops the head task and appends the incoming one.
	OverflowSlide Overflow = "slide"
)

// ParseOverflow converts a config value. Empty selects OverflowDiscard.
func ParseOverflow(s string) (Overflow, error) {
	switch o := Overflow(s); o {
	case "":
		return OverflowDiscard, nil
	case OverflowDiscard, OverflowOverlap, OverflowSlide:
		return o, nil
	default:
		return "", fmt.Errorf("%w: overflow must be one of discard, overlap, slide (got %q)", ErrInvalidOptions, s)
	}
}

// Failure selects what happens when an attempt returns an error.
type Failure string

const (
	// FailureIgnore settles the task with the error after one attempt.
	FailureIgnore Failure = "ignore"
	// FailureRetry retries in place up to RetryCount times.
	FailureRetry Failure = "retry"
	// FailureRequeue pushes the task back onto the buffer up to RetryCount times.
	FailureRequeue Failure = "requeue"
)

// ParseFailure converts a config value. Empty selects FailureIgnore.
func ParseFailure(s string) (Failure, error) {
	switch f := Failure(s); f {
	case "":
		return FailureIgnore, nil
	case FailureIgnore, FailureRetry, FailureRequeue:
		return f, nil
	default:
		return "", fmt.Errorf("%w: failure must be one of ignore, retry, requeue (got %q)", ErrInvalidOptions, s)
	}
}

// Options is the per-queue policy. Zero Length, Overflow and Failure fall back
// to their defaults when the options are applied, so a Length of 0 means
// DefaultLength rather than an unbuffered queue.
type Options struct {
	Length        int
	Overflow      Overflow
	Priority      Priority
	Failure       Failure
	RetryCount    int
	RetryInterval time.Duration
	Timeout       time.Duration
	MaxQueueTime  time.Duration
	// Objectify makes Push return a Task handle.
	Objectify bool
	// Default, when non-nil, is returned instead of ErrTimeout.
	Default any
}

// Option mutates Options. Options are merged by applying them in order on
// top of whatever is already set.
type Option func(*Options)

// DefaultOptions returns the baseline policy.
func DefaultOptions() Options {
	return Options{
		Length:   DefaultLength,
		Overflow: OverflowDiscard,
		Failure:  FailureIgnore,
	}
}

// NewOptions applies opts on top of DefaultOptions.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	o.apply(opts...)
	return o
}

func (o *Options) apply(opts ...Option) {
	for _, fn := range opts {
		if fn != nil {
			fn(o)
		}
	}
}

// Validate checks ranges and enum membership.
func (o Options) Validate() error {
	if o.Length < 0 {
		return fmt.Errorf("%w: length must be >= 0, 0 selects the default (got %d)", ErrInvalidOptions, o.Length)
	}
	if _, err := ParseOverflow(string(o.Overflow)); err != nil {
		return err
	}
	if _, err := ParseFailure(string(o.Failure)); err != nil {
		return err
	}
	if o.RetryCount < 0 {
		return fmt.Errorf("%w: retry count must be >= 0 (got %d)", ErrInvalidOptions, o.RetryCount)
	}
	if o.RetryInterval < 0 || o.Timeout < 0 || o.MaxQueueTime < 0 {
		return fmt.Errorf("%w: durations must be >= 0", ErrInvalidOptions)
	}
	return nil
}

func (o Options) normalized() Options {
	if o.Length == 0 {
		o.Length = DefaultLength
	}
	if o.Overflow == "" {
		o.Overflow = OverflowDiscard
	}
	if o.Failure == "" {
		o.Failure = FailureIgnore
	}
	return o
}

func WithLength(n int) Option { return func(o *Options) { o.Length = n } }

func WithOverflow(v Overflow) Option { return func(o *Options) { o.Overflow = v } }

func WithPriority(p Priority) Option { return func(o *Options) { o.Priority = p } }

func WithFailure(v Failure) Option { return func(o *Options) { o.Failure = v } }

// WithRetry sets the failure policy together with its budget and delay.
func WithRetry(failure Failure, count int, interval time.Duration) Option {
	return func(o *Options) {
		o.apply(WithFailure(failure), WithRetryCount(count), WithRetryInterval(interval))
	}
}

func WithRetryCount(n int) Option { return func(o *Options) { o.RetryCount = n } }

func WithRetryInterval(d time.Duration) Option { return func(o *Options) { o.RetryInterval = d } }

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }

func WithMaxQueueTime(d time.Duration) Option { return func(o *Options) { o.MaxQueueTime = d } }

func WithObjectify(v bool) Option { return func(o *Options) { o.Objectify = v } }

func WithDefault(v any) Option { return func(o *Options) { o.Default = v } }
