package refill

import "strings"

// failureClass partitions failure messages into the alerting policy
// they fall under.
type failureClass int

const (
	classOther failureClass = iota
	classTransient
	classMisconfiguration
	classExhaustion
)

// The matching is substring-based against human-readable error text.
// Brittle, but it is the contract the AllowanceModule and RPC layers
// actually expose, so the tables below are the single place to audit.
var (
	misconfigurationSubstrings = []string{
		"delegate not registered",
		"not enabled",
		"unauthorized",
	}

	exhaustionSubstrings = []string{
		"above spend limit",
		"allowance exceeded",
	}

	transientSubstrings = []string{
		"connection reset",
		"timeout",
		"network",
		"fetch",
	}
)

func classify(err error) failureClass {
	if err == nil {
		return classOther
	}
	text := strings.ToLower(err.Error())

	for _, s := range misconfigurationSubstrings {
		if strings.Contains(text, s) {
			return classMisconfiguration
		}
	}
	for _, s := range exhaustionSubstrings {
		if strings.Contains(text, s) {
			return classExhaustion
		}
	}
	for _, s := range transientSubstrings {
		if strings.Contains(text, s) {
			return classTransient
		}
	}

	return classOther
}
