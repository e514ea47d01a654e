// Package runsets implements batch submission of one workflow against many records.
//
// Submission phases:
//   - validate: pure checks of the request against Config (size limit, duplicate ids)
//   - fetch: every record is read; any failure rejects the whole batch before anything is persisted
//   - submit: the run set is created, then records are bound and submitted one at a time
//
// A failed submission never aborts the batch. Every record yields exactly one
// persisted Run, carrying either the engine id (status UNKNOWN) or the failure
// text (status SYSTEM_ERROR). The batch verdict is ERROR only when every run
// ended in an error state.
package runsets
