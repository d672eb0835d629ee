package cron

import "testing"

func FuzzValidateSchedule(f *testing.F) {
	f.Add("*/5 * * * *")
	f.Add("0 0 * * *")
	f.Add("@every 30s")
	f.Add("@hourly")
	f.Add("* * * * *")
	f.Add("invalid")
	f.Add("")
	f.Add("60 * * * *")
	f.Add("@every")

	f.Fuzz(func(_ *testing.T, expr string) {
		// Must not panic; errors are expected.
		_ = ValidateSchedule(expr)
	})
}
