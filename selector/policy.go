package selector

import (
	"fmt"
	"regexp"
)

// ClassPolicy decides which class names carry no identity and are left out
// of generated selectors.
type ClassPolicy interface {
	IsUtility(class string) bool
}

// ClassPolicyFunc adapts a function to ClassPolicy.
type ClassPolicyFunc func(class string) bool

func (f ClassPolicyFunc) IsUtility(class string) bool { return f(class) }

// AllowAll treats every class as meaningful.
var AllowAll ClassPolicy = ClassPolicyFunc(func(string) bool { return false })

type denylist []*regexp.Regexp

func (d denylist) IsUtility(class string) bool {
	for _, re := range d {
		if re.MatchString(class) {
			return true
		}
	}
	return false
}

// DenyPatterns builds a policy that rejects classes matching any of the
// regular expressions.
func DenyPatterns(patterns ...string) (ClassPolicy, error) {
	d := make(denylist, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("selector: class pattern %q: %w", p, err)
		}
		d = append(d, re)
	}
	return d, nil
}

// MustDenyPatterns is DenyPatterns for patterns known at compile time.
func MustDenyPatterns(patterns ...string) ClassPolicy {
	p, err := DenyPatterns(patterns...)
	if err != nil {
		panic(err)
	}
	return p
}

// UtilityPatterns are the layout, spacing, colour, breakpoint and state
// prefixes of common atomic CSS frameworks. The list is tuned to one
// convention; pass a different policy for other codebases.
var UtilityPatterns = []string{
	`^flex$`, `^grid$`, `^p-`, `^m-`, `^w-`, `^h-`, `^text-`, `^bg-`,
	`^border-`, `^rounded-`, `^shadow-`, `^font-`, `^opacity-`,
	`^transition-`, `^transform-`, `^hover:`, `^focus:`, `^active:`,
	`^sm:`, `^md:`, `^lg:`, `^xl:`, `^2xl:`, `^gap-`, `^space-`,
	`^items-`, `^justify-`, `^self-`, `^order-`, `^col-`, `^row-`,
	`^overflow-`, `^z-`, `^top-`, `^right-`, `^bottom-`, `^left-`,
	`^inset-`, `^absolute$`, `^relative$`, `^fixed$`, `^sticky$`,
	`^static$`, `^block$`, `^inline-`, `^hidden$`, `^visible$`, `^invisible$`,
}

// UtilityDenylist is the default policy built from UtilityPatterns.
var UtilityDenylist = MustDenyPatterns(UtilityPatterns...)
