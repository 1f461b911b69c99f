package countdown_test

import (
	"testing"

	"github.com/timelock-wallet/tlw/internal/countdown"
)

func FuzzFormat(f *testing.F) {
	for _, s := range []int64{-1, 0, 1, 59, 60, 3599, 3600, 86399, 86400, 1 << 40} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, remaining int64) {
		got := countdown.Format(remaining)
		if (remaining <= 0) != (got == countdown.ReadyLabel) {
			t.Fatalf("Format(%d) = %q", remaining, got)
		}
		if got == "" {
			t.Fatalf("Format(%d) is empty", remaining)
		}
	})
}
