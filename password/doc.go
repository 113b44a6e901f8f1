// Package password hashes and verifies user passwords.
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher] also verifies bcrypt hashes ($2a$, $2b$, $2y$) so accounts seeded
// or migrated with bcrypt keep working; [Hasher.NeedsUpgrade] reports them
// so the caller can rehash with argon2id after a successful login.
//
// Password policy (character classes) is enforced by the validation
// package; this package only rejects passwords shorter than 8 bytes.
package password
