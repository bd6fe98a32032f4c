package domain

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrPolicyLimit    = errors.New("only one policy can be active at a time")
	ErrNoPolicy       = errors.New("no policy stored")
	ErrPolicyNotFound = errors.New("policy not found")
	ErrInFlight       = errors.New("request already in flight")
	ErrNoDrift        = errors.New("health score is up to date with the policy")
)
