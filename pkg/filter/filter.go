package filter

import (
	"fmt"
	"regexp"

	"github.com/moyu-x/file-organizer/internal/errs"
	"github.com/moyu-x/file-organizer/pkg/scanner"
)

// Spec holds user supplied filters. Nil bounds and empty patterns are absent.
type Spec struct {
	Include string
	Exclude string
	MinSize *int64
	MaxSize *int64
}

// Reason names the check that rejected a candidate.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonInclude Reason = "include"
	ReasonExclude Reason = "exclude"
	ReasonMinSize Reason = "min-size"
	ReasonMaxSize Reason = "max-size"
)

type Pipeline struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
	minSize *int64
	maxSize *int64
}

// New validates spec once. Any problem is a configuration error and the run
// is expected to abort; a broken filter is never silently dropped.
func New(spec Spec) (*Pipeline, error) {
	p := &Pipeline{minSize: spec.MinSize, maxSize: spec.MaxSize}

	var err error
	if p.include, err = compile("include", spec.Include); err != nil {
		return nil, err
	}
	if p.exclude, err = compile("exclude", spec.Exclude); err != nil {
		return nil, err
	}

	if spec.MinSize != nil && *spec.MinSize < 0 {
		return nil, errs.Wrap(errs.ErrConfig, "filter", "", fmt.Sprintf("min-size %d is negative", *spec.MinSize), nil)
	}
	if spec.MaxSize != nil && *spec.MaxSize < 0 {
		return nil, errs.Wrap(errs.ErrConfig, "filter", "", fmt.Sprintf("max-size %d is negative", *spec.MaxSize), nil)
	}
	if spec.MinSize != nil && spec.MaxSize != nil && *spec.MinSize > *spec.MaxSize {
		return nil, errs.Wrap(errs.ErrConfig, "filter", "",
			fmt.Sprintf("min-size %d exceeds max-size %d", *spec.MinSize, *spec.MaxSize), nil)
	}

	return p, nil
}

func compile(name, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfig, "filter", name, fmt.Sprintf("invalid pattern %q", pattern), err)
	}
	return re, nil
}

// Accepts runs include, exclude, min-size and max-size in that order and
// stops at the first rejection. Patterns search the base name.
func (p *Pipeline) Accepts(c scanner.Candidate) (bool, Reason) {
	if p.include != nil && !p.include.MatchString(c.Name) {
		return false, ReasonInclude
	}
	if p.exclude != nil && p.exclude.MatchString(c.Name) {
		return false, ReasonExclude
	}
	if p.minSize != nil && c.Size < *p.minSize {
		return false, ReasonMinSize
	}
	if p.maxSize != nil && c.Size > *p.maxSize {
		return false, ReasonMaxSize
	}
	return true, ReasonNone
}
