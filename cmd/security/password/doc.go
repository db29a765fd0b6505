// Package password hashes and verifies principal passwords with Argon2id.
//
// Hashes use the PHC string layout
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// and are treated as untrusted input on Verify: parameters far above the
// configured cost are refused so a tampered row cannot pin the CPU.
//
// Federated principals never log in with a password; they receive a
// Placeholder hash built from random bytes nobody knows.
package password
