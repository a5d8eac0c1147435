package routing

import (
	"strings"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

// MatchKeywords reports whether text satisfies keywords under mode,
// case-insensitively. Blank keywords are ignored; a list with no usable
// keyword never matches. Any mode other than "all" behaves as "any".
func MatchKeywords(text string, keywords []string, mode model.MatchMode) bool {
	lower := strings.ToLower(text)

	usable := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		usable++
		found := strings.Contains(lower, kw)
		if mode == model.MatchAll && !found {
			return false
		}
		if mode != model.MatchAll && found {
			return true
		}
	}
	return mode == model.MatchAll && usable > 0
}

// firstMessageCheck answers "is this the first message from the identity"
// at most once per routing call.
type firstMessageCheck struct {
	check func() (bool, error)
	done  bool
	value bool
}

func (f *firstMessageCheck) get() (bool, error) {
	if f.done {
		return f.value, nil
	}
	v, err := f.check()
	if err != nil {
		return false, err
	}
	f.done, f.value = true, v
	return v, nil
}

// evaluateRules walks rules in the given order and returns the first
// matching rule, or nil.
func evaluateRules(rules []model.TriggerRule, text string, first *firstMessageCheck) (*model.TriggerRule, error) {
	for i := range rules {
		rule := &rules[i]
		switch rule.Type {
		case model.RuleAlways:
			return rule, nil
		case model.RuleFirstMessage:
			isFirst, err := first.get()
			if err != nil {
				return nil, err
			}
			if isFirst {
				return rule, nil
			}
		case model.RuleKeywords:
			if MatchKeywords(text, rule.KeywordList(), rule.MatchMode) {
				return rule, nil
			}
		}
	}
	return nil, nil
}
