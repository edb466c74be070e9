// Package notify fans a classification result out to every configured sink.
package notify

import (
	"context"
	"errors"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/auth"
)

// Multi calls every notifier in order. One failing sink does not stop the rest.
type Multi []analyzer.Notifier

func (m Multi) Notify(ctx context.Context, principal *auth.Principal, result *analyzer.Result) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, principal, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine drops nil notifiers and returns nil when none remain, so the
// composer can skip notification entirely.
func Combine(ns ...analyzer.Notifier) analyzer.Notifier {
	var out Multi
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
