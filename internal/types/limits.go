package types

import (
	"encoding/json"
	"fmt"
)

// unlimitedSentinel is the catalog/wire encoding for "no cap". It exists
// only at serialization boundaries; enforcement code works with the tagged
// Limit type and never compares against -1 directly.
const unlimitedSentinel = -1

// Limit is a tagged per-period cap: either Limited(n) with n >= 0, or
// Unlimited. Representing the cap this way keeps sentinel arithmetic out
// of the enforcement paths.
type Limit struct {
	n         int
	unlimited bool
}

// LimitOf returns a bounded limit of n. Negative values other than the
// unlimited sentinel are clamped to zero (maximally restrictive).
func LimitOf(n int) Limit {
	if n == unlimitedSentinel {
		return Unlimited()
	}
	if n < 0 {
		n = 0
	}
	return Limit{n: n}
}

// Unlimited returns the unbounded limit.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// IsUnlimited reports whether the limit imposes no cap.
func (l Limit) IsUnlimited() bool { return l.unlimited }

// Value returns the numeric cap. Calling Value on an unlimited limit
// returns 0; callers must check IsUnlimited first.
func (l Limit) Value() int {
	if l.unlimited {
		return 0
	}
	return l.n
}

// Reached reports whether current consumption meets or exceeds the cap.
// An unlimited limit is never reached.
func (l Limit) Reached(current int) bool {
	if l.unlimited {
		return false
	}
	return current >= l.n
}

// Exceeds reports whether this limit grants strictly more headroom than
// other: it is unlimited while other is not, or its cap is strictly higher.
// Used by the upgrade-suggestion heuristic.
func (l Limit) Exceeds(other Limit) bool {
	if l.unlimited {
		return !other.unlimited
	}
	if other.unlimited {
		return false
	}
	return l.n > other.n
}

// Sentinel returns the wire encoding: the cap, or -1 for unlimited.
func (l Limit) Sentinel() int {
	if l.unlimited {
		return unlimitedSentinel
	}
	return l.n
}

// String implements fmt.Stringer for log output.
func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.n)
}

// MarshalJSON encodes the limit as its sentinel integer, matching the
// catalog representation clients already understand.
func (l Limit) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Sentinel())
}

// UnmarshalJSON decodes a sentinel integer into a tagged limit.
func (l *Limit) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*l = LimitOf(n)
	return nil
}

// UnlimitedEditsSentinel is the edits_remaining value stamped on orders
// whose package grants unlimited edits. It is a very large cap, not a
// magic skip-decrement value: decrement logic treats it like any other
// count, and callers distinguish it only for display.
const UnlimitedEditsSentinel = 999

// EditAllowance is the number of post-purchase edits a package grants.
type EditAllowance int

// IsUnlimited reports whether the allowance uses the unlimited sentinel.
func (e EditAllowance) IsUnlimited() bool { return int(e) >= UnlimitedEditsSentinel }
