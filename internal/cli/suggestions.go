package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/timelock-wallet/tlw/pkg/color"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// suggestLocks returns a hint for a lock id the user mistyped.
func suggestLocks(query string, locks []model.LockRecord) string {
	var matches []string
	q := strings.ToLower(query)
	for _, l := range locks {
		if strings.HasPrefix(strings.ToLower(l.ID), q) || strings.Contains(strings.ToLower(l.ID), q) {
			matches = append(matches, color.LockID(l.ID))
		}
		if len(matches) == 3 {
			break
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("Run %s to see your locks.", color.Code("tlw lock list"))
	}
	hint := "Did you mean"
	if len(matches) > 1 {
		hint += " one of"
	}
	return fmt.Sprintf("%s: %s?", hint, strings.Join(matches, ", "))
}

// suggestInit provides a suggestion to initialize a workspace.
func suggestInit() string {
	return fmt.Sprintf("Run %s to create one here.", color.Code("tlw init"))
}

// suggestOwner explains how to pick the wallet identity.
func suggestOwner() string {
	return fmt.Sprintf("Pass %s or run %s.", color.Code("--owner <identity>"), color.Code("tlw config set owner <identity>"))
}

// withHint appends an indented hint line to err's message.
func withHint(err error, hint string) error {
	return fmt.Errorf("%w\n%s", err, color.Dim("  "+hint))
}

// explainWithdrawError adds a lock suggestion when id is not one of locks.
func explainWithdrawError(err error, id string, locks []model.LockRecord) error {
	if !errors.Is(err, errclass.ErrNotWithdrawable) {
		return err
	}
	for _, l := range locks {
		if l.ID == id {
			return err
		}
	}
	return withHint(err, suggestLocks(id, locks))
}

func errNotInWorkspace() error {
	return withHint(errors.New("not a tlw workspace (or any parent)"), suggestInit())
}

func errNoOwner() error {
	return withHint(errclass.ErrNotConnected.WithMessage("no wallet identity configured"), suggestOwner())
}
