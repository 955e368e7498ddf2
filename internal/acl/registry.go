package acl

import (
	"context"
	"regexp"
	"sync"

	"github.com/forgefleet/forge-core/internal/infrastructure/mqtt"
)

// Direction distinguishes publish from subscribe authorization.
type Direction int

// Direction constants.
const (
	DirectionPublish Direction = iota
	DirectionSubscribe
)

// String returns the direction name for logging.
func (d Direction) String() string {
	if d == DirectionPublish {
		return "publish"
	}
	return "subscribe"
}

// VerifyFunc is a structural verification predicate attached to a rule.
//
// It receives the regex submatches of the matched topic (index 0 is the
// whole topic, 1..n the capture groups) and the parsed identity, and
// returns the final verdict for the operation. Lookups that fail deny.
type VerifyFunc func(ctx context.Context, captures []string, id Identity) bool

// Rule authorizes topics matching a pattern for one identity class and
// direction.
//
// A matching rule with no Verify predicate grants access on the pattern
// match alone. SharedEligible marks the rule as usable through a
// shared-subscription envelope.
type Rule struct {
	Pattern        *regexp.Regexp
	Verify         VerifyFunc
	SharedEligible bool
}

// ruleKey selects a rule list.
type ruleKey struct {
	class     Class
	direction Direction
}

// Registry holds the access rules for broker operations.
//
// It is constructed once at startup and passed by reference to every
// consumer. Extension modules may append rules during their own
// initialization via AddRule; the built-in rule sets for the three
// identity classes are installed before any traffic is evaluated and
// never change afterwards.
//
// Rule evaluation is first-match-wins in registration order. There is no
// rule scoring or overlap resolution beyond order.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	mu    sync.RWMutex
	rules map[ruleKey][]Rule
}

// NewRegistry creates an empty rule registry.
// With no rules installed every operation is denied.
func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[ruleKey][]Rule),
	}
}

// AddRule appends a rule to the list for (class, direction).
//
// This is the extension point for optional platform modules; rules are
// evaluated in the order they were added.
func (r *Registry) AddRule(class Class, direction Direction, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ruleKey{class: class, direction: direction}
	r.rules[key] = append(r.rules[key], rule)
}

// Verify decides whether the identity may perform the operation on the topic.
//
// The decision procedure:
//  1. Parse the credential; malformed or unknown class denies.
//  2. Select the rule list for (class, direction); empty denies.
//  3. For subscribe operations, unwrap a shared-subscription envelope.
//     The share-group name must equal the third colon-delimited segment
//     of the credential; a mismatch denies before any rule matching.
//  4. Scan rules in order. The first rule whose pattern matches the
//     (possibly unwrapped) topic decides: a shared subscription against a
//     rule not flagged shared-eligible denies without trying further
//     rules; otherwise the rule's predicate (if any) gives the verdict,
//     and a predicate-less match grants.
//  5. No match denies.
//
// A false return makes no distinction between "denied" and "unparseable";
// the broker rejects the operation either way.
func (r *Registry) Verify(ctx context.Context, credential, topic string, direction Direction) bool {
	id, ok := ParseIdentity(credential)
	if !ok {
		return false
	}

	r.mu.RLock()
	rules := r.rules[ruleKey{class: id.Class, direction: direction}]
	r.mu.RUnlock()

	if len(rules) == 0 {
		return false
	}

	shared := false
	if direction == DirectionSubscribe {
		if group, inner, isShared := mqtt.SplitShared(topic); isShared {
			parts := id.Parts()
			if len(parts) < identityParts || group != parts[2] {
				return false
			}
			topic = inner
			shared = true
		}
	}

	for _, rule := range rules {
		captures := rule.Pattern.FindStringSubmatch(topic)
		if captures == nil {
			continue
		}

		// First structural match wins, even when it denies.
		if shared && !rule.SharedEligible {
			return false
		}
		if rule.Verify != nil {
			return rule.Verify(ctx, captures, id)
		}
		return true
	}

	return false
}
