package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

// MultiNotifier delivers each notification to every wrapped notifier in
// order. One failing channel does not stop the others.
type MultiNotifier struct {
	notifiers []ports.Notifier
}

var _ ports.Notifier = (*MultiNotifier)(nil)

// NewMultiNotifier wraps notifiers, skipping nil entries.
func NewMultiNotifier(notifiers ...ports.Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Name implements ports.Notifier.
func (m *MultiNotifier) Name() string {
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// Notify implements ports.Notifier. The returned error joins every channel
// failure.
func (m *MultiNotifier) Notify(ctx context.Context, note domain.Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of wrapped notifiers.
func (m *MultiNotifier) Len() int { return len(m.notifiers) }
