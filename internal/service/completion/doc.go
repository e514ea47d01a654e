// Package completion applies engine observations to persisted runs.
//
// Outcomes:
//   - SUCCESS: the observation was applied, or it matched the persisted status and only the poll time advanced
//   - VALIDATION: a completed run produced outputs that do not match the declared output types; nothing is persisted
//   - ERROR: the run update did not affect exactly one row
//
// Completed runs with output definitions write translated outputs back to their
// record. A failed write-back turns the run into SYSTEM_ERROR with the failure
// recorded in the run's error text. Observations for the same run are
// serialized by run id.
package completion
