// Package custody implements the wTOMAX governance-gated custody vault.
//
// A Vault wraps a native value-transfer medium into an accounted token and
// guards every sensitive action behind a 3-of-5 guardian quorum:
//   - Guardian registry: five guardians plus one super administrator.
//   - Approval cycles: guardians vote per request key; the executor consumes
//     the cycle atomically with the action it authorises.
//   - Vesting: a locked reserve drip-released in ten annual tranches.
//   - Wrap accounting: native reserve held 1:1 against wrapped supply.
//   - Gate: a pause flag blocking every mutating entry point except unpause.
//
// Every exported method runs under the vault mutex and either fully commits
// or returns an error with the state untouched.
package custody
