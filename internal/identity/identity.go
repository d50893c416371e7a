// Package identity authenticates vault callers.
//
// It provides:
//   - SigningKey          loads or generates the RSA key that signs caller tokens
//   - CallerTokenIssuer   issues and verifies RS256 caller tokens
//   - Credentials         bcrypt-hashed secrets per caller address
//   - JWKSHandler         serves the verification key as a JWK set
//   - RequireCaller       Gin middleware enforcing a Bearer caller token
//
// Tokens only prove which address is calling. Whether that address may
// perform an action is decided by the vault's role checks.
package identity
