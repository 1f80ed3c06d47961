// Package handle provides deciders for steps.Recover
package handle

import (
	"context"
	"errors"

	"github.com/hashicorp/errwrap"
)

// Always treat the error as handled
func Always(error) bool {
	return true
}

// Never treat the error as handled
func Never(error) bool {
	return false
}

// OnCancel handles cancellation and timeouts but not other errors
func OnCancel(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errwrap.Contains(err, context.Canceled.Error()) || errwrap.Contains(err, context.DeadlineExceeded.Error())
}
