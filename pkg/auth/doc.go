// Package auth contains the credential primitives used by potkeeper: signed
// session tokens, password hashing and random link tokens.
//
// # Session tokens
//
// TokenCodec issues HS256 JWTs carrying the user id and account kind. Tokens
// expire 24 hours after issue and are verified with strict base64url decoding,
// so any change to the signature segment is rejected:
//
//	codec := auth.NewTokenCodec([]byte(secret))
//	token, err := codec.Sign(auth.Principal{UserID: id, Kind: auth.KindEmail})
//	principal, err := codec.Verify(token)
//
// # Passwords
//
// PasswordHasher derives argon2id keys with a random per-user salt that is
// stored next to the hash.
package auth
