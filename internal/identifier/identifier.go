// Package identifier issues and validates accident identifiers.
//
// An identifier has the form ACC-<YYYY>-<suffix>. The suffix is either a
// 26 character ULID or a zero-padded decimal sequence of 4 to 12 digits.
package identifier

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const Prefix = "ACC"

// MaxSequence is the largest sequence number that still fits the 12 digit suffix.
const MaxSequence = 999_999_999_999

var (
	ErrMalformed = errors.New("malformed accident identifier")
	ErrExhausted = errors.New("accident identifier space exhausted")
)

var pattern = regexp.MustCompile(`^ACC-([0-9]{4})-([0-9A-HJKMNP-TV-Z]{26}|[0-9]{4,12})$`)

// ID is an accident identifier. It never changes once minted.
type ID string

func (id ID) String() string { return string(id) }

// Parts is the parsed form of an ID.
type Parts struct {
	Year   int
	Suffix string
}

// ID renders the parts back into an identifier.
func (p Parts) ID() ID {
	return ID(fmt.Sprintf("%s-%04d-%s", Prefix, p.Year, p.Suffix))
}

// Validate is a pure format check. It does not consult any store.
func Validate(token string) bool {
	return pattern.MatchString(token)
}

// Parse splits a token into its year and suffix.
func Parse(token string) (Parts, error) {
	m := pattern.FindStringSubmatch(token)
	if m == nil {
		return Parts{}, fmt.Errorf("%w: %q", ErrMalformed, token)
	}
	year, _ := strconv.Atoi(m[1])
	return Parts{Year: year, Suffix: m[2]}, nil
}

// FormatSequence renders a sequence number as an identifier suffix.
func FormatSequence(n int64) (string, error) {
	if n <= 0 || n > MaxSequence {
		return "", ErrExhausted
	}
	return fmt.Sprintf("%04d", n), nil
}

// SuffixSource yields unique identifier suffixes.
type SuffixSource interface {
	NextSuffix(ctx context.Context) (string, error)
}

// ULIDSource mints monotonic ULIDs. Safe for concurrent use.
type ULIDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewULIDSource() *ULIDSource {
	return &ULIDSource{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (s *ULIDSource) NextSuffix(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(s.now()), s.entropy)
	if err != nil {
		if errors.Is(err, ulid.ErrMonotonicOverflow) {
			return "", ErrExhausted
		}
		return "", err
	}
	return id.String(), nil
}

// SequenceSource is an in-process counter. Uniqueness holds only within a
// single process; multi-process deployments use the Postgres sequence.
type SequenceSource struct {
	next atomic.Int64
}

// NewSequenceSource starts counting after last.
func NewSequenceSource(last int64) *SequenceSource {
	s := &SequenceSource{}
	s.next.Store(last)
	return s
}

func (s *SequenceSource) NextSuffix(ctx context.Context) (string, error) {
	return FormatSequence(s.next.Add(1))
}

// Issuer mints identifiers stamped with the current year.
type Issuer struct {
	source SuffixSource
	now    func() time.Time
	log    *zap.Logger
}

func NewIssuer(source SuffixSource, now func() time.Time, log *zap.Logger) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{source: source, now: now, log: log.Named("identifier")}
}

// Issue returns a fresh identifier. Two calls never return the same value.
func (i *Issuer) Issue(ctx context.Context) (ID, error) {
	suffix, err := i.source.NextSuffix(ctx)
	if err != nil {
		if errors.Is(err, ErrExhausted) {
			i.log.Error("identifier suffix space exhausted", zap.Error(err))
		}
		return "", fmt.Errorf("issue accident identifier: %w", err)
	}
	return Parts{Year: i.now().UTC().Year(), Suffix: suffix}.ID(), nil
}
