// Package eligibility decides, per scheduled entry and evaluation instant,
// whether a message is sent or blocked.
//
// The pipeline is: schedule evaluator (IsDue), duplicate detector
// (FindDuplicate), content validator (Validator.Validate) and rate limiter
// (RateLimiter.Check). Engine.Decide runs them in that order and stops at the
// first failure. Everything here is pure or talks to a CounterStore; sending,
// persistence and alerting live in internal/dispatch.
package eligibility
