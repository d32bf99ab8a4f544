// Package preflight provides readiness checks for the filesystem paths and
// external services Vigil depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check. A
//     failure does not stop the daemon; sessions surface the same problem
//     as stage failures.
//   - The CLI "vigil status" command runs RunAll locally so operators can
//     see configuration problems even when the daemon is down.
package preflight
