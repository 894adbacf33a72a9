// Package rowsource is the boundary between free-text stored rows and
// eligibility.Entry. Enabled flags, dates, recurrence text and fire states
// are normalised here so the engine only sees typed values.
package rowsource
