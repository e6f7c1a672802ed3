// Package password hashes and verifies user passwords.
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verify also accepts bcrypt hashes carried over from older deployments;
// NeedsRehash flags them (and weaker Argon2 parameters) so the caller can
// replace the hash after the next successful login.
//
// The package never stores or logs passwords.
package password
